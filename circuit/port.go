package circuit

import (
	"github.com/AnatoleLucet/render"
)

// port is a pin of a part. Ports are created by their part and follow it
// around.
type port struct {
	base

	offset Point

	// traces connected to this port
	connections map[string]bool
}

func newPort(env *Env, name string, offset Point) *render.Node {
	p := &port{
		base:        newBase(env, Description{Kind: KindPort, Name: name}),
		offset:      offset,
		connections: map[string]bool{},
	}
	return render.NewNode(KindPort, name, p)
}

func (p *port) RunPhase(ctx *render.PhaseContext) error {
	p.out.reset(ctx.Phase())

	owner := coreOf(ctx.Node().Parent())

	switch ctx.Phase() {
	case PhaseSourceNetlist:
		p.out.emit(ctx, "source_port", map[string]any{
			"component": ctx.Node().Parent().Name(),
		})
	case PhaseSchematicPlacement:
		p.sch = nil
		if owner == nil || owner.sch == nil {
			ctx.Retry()
			return nil
		}
		pos := offset(*owner.sch, p.offset)
		p.sch = &pos
		p.out.emit(ctx, "schematic_port", map[string]any{"center": pos})
	case PhasePcbPlacement:
		p.pcb = nil
		if owner == nil || owner.pcb == nil {
			ctx.Retry()
			return nil
		}
		pos := offset(*owner.pcb, p.offset)
		p.pcb = &pos
		p.out.emit(ctx, "pcb_port", map[string]any{"center": pos})
	}
	return nil
}

func (p *port) connect(trace string) {
	p.connections[trace] = true
}
