package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AnatoleLucet/render/internal"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttach(t *testing.T) {
	registry, err := internal.NewRegistry("expand", "layout")
	require.NoError(t, err)

	root := internal.NewNode("board", "main", internal.PhaseMap{
		"layout": func(ctx *internal.PhaseContext) error {
			_, err := ctx.RegisterEffect("solver", func(context.Context) (any, error) {
				return nil, errors.New("no solution")
			})
			return err
		},
	})

	d, err := internal.NewDriver(registry, root)
	require.NoError(t, err)

	runsBefore := testutil.ToFloat64(phaseRuns.WithLabelValues("layout", "ok"))
	failuresBefore := testutil.ToFloat64(effectFailures.WithLabelValues("solver"))
	settledBefore := testutil.ToFloat64(settled)

	detach := Attach(d)
	defer detach()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.RenderUntilSettled(ctx))

	assert.Equal(t, runsBefore+1, testutil.ToFloat64(phaseRuns.WithLabelValues("layout", "ok")))
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(effectFailures.WithLabelValues("solver")))
	assert.Equal(t, settledBefore+1, testutil.ToFloat64(settled))
	assert.Equal(t, float64(0), testutil.ToFloat64(effectsOutstanding))
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200"))
	RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200")))
}
