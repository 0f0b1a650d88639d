package circuit

import "github.com/AnatoleLucet/render"

var netLabelSize = Size{W: 2, H: 1}

type net struct {
	base

	// traces connected to this net
	connections map[string]bool
}

func newNet(env *Env, desc Description) *net {
	return &net{base: newBase(env, desc), connections: map[string]bool{}}
}

func (n *net) RunPhase(ctx *render.PhaseContext) error {
	n.out.reset(ctx.Phase())

	switch ctx.Phase() {
	case PhaseSourceNetlist:
		n.out.emit(ctx, "source_net", map[string]any{
			"is_ground": ctx.Node().Name() == "GND",
		})
	case PhaseSchematicPlacement:
		if n.placeSchematic(ctx) {
			n.out.emit(ctx, "schematic_net_label", map[string]any{
				"center": *n.sch,
				"text":   ctx.Node().Name(),
			})
		}
	case PhasePcbPlacement:
		n.placePcb(ctx)
	case PhaseDiagnostics:
		if len(n.connections) == 0 {
			ctx.Warnf("net %s has no connections", ctx.Node().Name())
		}
	}
	return nil
}

func (n *net) connect(trace string) {
	n.connections[trace] = true
}
