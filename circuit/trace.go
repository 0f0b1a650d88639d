package circuit

import (
	"context"

	"github.com/AnatoleLucet/render"
	"github.com/AnatoleLucet/render/circuit/autorouter"
)

const (
	autorouteEffect = "autoroute"
	traceWidth      = 0.15
)

// trace connects two endpoints, each a port or a net.
type trace struct {
	base

	from *render.Node
	to   *render.Node
}

func newTrace(env *Env, desc Description) *trace {
	return &trace{base: newBase(env, desc)}
}

func (t *trace) RunPhase(ctx *render.PhaseContext) error {
	t.out.reset(ctx.Phase())

	switch ctx.Phase() {
	case PhaseNetConstruction:
		return t.connect(ctx)
	case PhaseSourceNetlist:
		t.emitSource(ctx)
	case PhaseSchematicTraceRouting:
		t.routeSchematic(ctx)
	case PhasePcbTraceRouting:
		return t.routePcb(ctx)
	}
	return nil
}

func (t *trace) connect(ctx *render.PhaseContext) error {
	t.from, t.to = nil, nil

	var endpoints [2]*render.Node
	for i, key := range []string{"from", "to"} {
		raw, ok := t.desc.String(key)
		if !ok {
			ctx.Errorf("trace is missing its %q selector", key)
			continue
		}
		sel, err := parseSelector(raw)
		if err != nil {
			ctx.Errorf("%v", err)
			continue
		}

		target, state := sel.resolve(ctx.Node().Root())
		switch state {
		case pending:
			ctx.Retry()
			return nil
		case missing:
			ctx.Errorf("selector %q matched nothing", raw)
			continue
		}
		endpoints[i] = target
	}

	if endpoints[0] == nil || endpoints[1] == nil {
		return nil
	}
	t.from, t.to = endpoints[0], endpoints[1]

	name := ctx.Node().Name()
	for _, end := range endpoints {
		owner := end
		switch logic := end.Logic().(type) {
		case *port:
			logic.connect(name)
			owner = end.Parent()
		case *net:
			logic.connect(name)
		}

		// the owner reports unconnected pins; make it look again
		if err := ctx.MarkDirty(owner, PhaseDiagnostics); err != nil {
			return err
		}
	}
	return nil
}

func (t *trace) emitSource(ctx *render.PhaseContext) {
	fields := map[string]any{}
	if raw, ok := t.desc.String("from"); ok {
		fields["from"] = raw
	}
	if raw, ok := t.desc.String("to"); ok {
		fields["to"] = raw
	}
	if t.from != nil && t.to != nil {
		fields["connected"] = []string{endpointName(t.from), endpointName(t.to)}
	}
	t.out.emit(ctx, "source_trace", fields)
}

func endpointName(n *render.Node) string {
	if n.Kind() == KindPort {
		return n.Parent().Name() + "." + n.Name()
	}
	return "net." + n.Name()
}

func (t *trace) routeSchematic(ctx *render.PhaseContext) {
	if t.from == nil || t.to == nil {
		return
	}

	a, b := coreOf(t.from).sch, coreOf(t.to).sch
	if a == nil || b == nil {
		ctx.Retry()
		return
	}

	path := autorouter.ManhattanPath(*a, *b)
	t.out.emit(ctx, "schematic_trace", map[string]any{
		"points": path.Points,
	})
}

// routePcb asks the router in the background and consumes the path on the
// run that follows its resolution.
func (t *trace) routePcb(ctx *render.PhaseContext) error {
	if t.from == nil || t.to == nil {
		return nil
	}

	if e, ok := ctx.TakeEffect(autorouteEffect); ok {
		route, err := render.Result[autorouter.RouteResult](e)
		if err != nil {
			// the failure is already a diagnostic on this node
			return nil
		}
		t.out.emit(ctx, "pcb_trace", map[string]any{
			"points": route.Points,
			"length": route.Length,
			"width":  traceWidth,
		})
		return nil
	}
	if e := ctx.Effect(autorouteEffect); e != nil && !e.Resolved() {
		ctx.Retry()
		return nil
	}

	a, b := coreOf(t.from).pcb, coreOf(t.to).pcb
	if a == nil || b == nil {
		ctx.Retry()
		return nil
	}

	router := t.env.Router
	req := autorouter.RouteRequest{
		Trace: ctx.Node().Name(),
		From:  *a,
		To:    *b,
		Width: traceWidth,
	}

	_, err := ctx.RegisterEffect(autorouteEffect, func(ctx context.Context) (any, error) {
		route, err := router.Route(ctx, req)
		if err != nil {
			return nil, err
		}
		return route, nil
	}, render.RerunOnResolve())
	return err
}
