package autorouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type RemoteOptions struct {
	Timeout time.Duration
	Retries int
	Logger  zerolog.Logger
}

// Remote asks an autorouting service over HTTP. Server errors and connection
// failures are retried.
type Remote struct {
	url    string
	client *retryablehttp.Client
}

func NewRemote(url string, opts RemoteOptions) *Remote {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 10 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.Logger = leveledLogger{opts.Logger}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}

	return &Remote{
		url:    strings.TrimRight(url, "/"),
		client: client,
	}
}

func (r *Remote) Route(ctx context.Context, req RouteRequest) (RouteResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RouteResult{}, errors.Wrap(err, "encode route request")
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.url+"/autoroute", bytes.NewReader(body))
	if err != nil {
		return RouteResult{}, errors.Wrap(err, "build route request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return RouteResult{}, errors.Wrapf(err, "route %s", req.Trace)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RouteResult{}, fmt.Errorf("route %s: autorouter returned %s: %s", req.Trace, resp.Status, strings.TrimSpace(string(msg)))
	}

	var result RouteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RouteResult{}, errors.Wrapf(err, "decode route for %s", req.Trace)
	}
	return result, nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.logger.Error().Fields(kv).Msg(msg) }

func (l leveledLogger) Warn(msg string, kv ...any) { l.logger.Warn().Fields(kv).Msg(msg) }

func (l leveledLogger) Info(msg string, kv ...any) { l.logger.Debug().Fields(kv).Msg(msg) }

func (l leveledLogger) Debug(msg string, kv ...any) { l.logger.Trace().Fields(kv).Msg(msg) }
