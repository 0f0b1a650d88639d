package circuit

import (
	"context"
	"time"

	"github.com/AnatoleLucet/render"
)

const drainTimeout = time.Second

type Result struct {
	Root     *render.Node
	Document *Document
	Report   *render.Report
	Sweeps   int
}

// Compile renders desc until it settles and assembles the document. User
// mistakes end up as diagnostics in the document; only configuration errors
// and stalls fail the call.
func Compile(ctx context.Context, desc Description, env *Env, opts ...render.Option) (*Result, error) {
	if env == nil {
		env = DefaultEnv()
	}

	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	root, err := Build(desc, env)
	if err != nil {
		return nil, err
	}

	effects, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]render.Option{
		render.WithLogger(env.Logger),
		render.WithEffectContext(effects),
	}, opts...)
	d, err := render.New(registry, root, opts...)
	if err != nil {
		return nil, err
	}
	if env.Metrics {
		defer render.InstrumentMetrics(d)()
	}

	result := &Result{Root: root, Report: d.Report()}

	if err := d.RenderUntilSettled(ctx); err != nil {
		result.Sweeps = d.Sweeps()

		// stop what is still running and collect it
		cancel()
		drain, stop := context.WithTimeout(context.Background(), drainTimeout)
		defer stop()
		if werr := d.Wait(drain); werr != nil {
			env.Logger.Warn().Err(werr).Msg("background effects did not stop")
		}

		return result, err
	}

	result.Sweeps = d.Sweeps()
	result.Document = Assemble(root)

	env.Logger.Debug().
		Int("sweeps", result.Sweeps).
		Int("records", len(result.Document.Records)).
		Msg("circuit compiled")

	return result, nil
}
