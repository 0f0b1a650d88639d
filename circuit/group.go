package circuit

import (
	"context"
	"slices"
	"time"

	"github.com/AnatoleLucet/render"
)

const layoutSolverEffect = "layout-solver"

// group covers boards and groups: containers that expand their description
// into children and lay them out.
type group struct {
	base

	size Size

	schSlots map[*render.Node]Point
	pcbSlots map[*render.Node]Point

	// children the running solver was given, in slot order
	solving []*render.Node
}

func newGroup(env *Env, desc Description) *group {
	return &group{base: newBase(env, desc)}
}

func (g *group) RunPhase(ctx *render.PhaseContext) error {
	g.out.reset(ctx.Phase())

	switch ctx.Phase() {
	case PhaseTreeExpansion:
		g.expand(ctx)
	case PhaseSchematicPlacement:
		g.place(ctx, g.placeSchematic)
	case PhaseSchematicLayout:
		return g.layoutSchematic(ctx)
	case PhasePcbPlacement:
		g.place(ctx, g.placePcb)
	case PhasePcbLayout:
		g.layoutPcb(ctx)
	case PhaseDiagnostics:
		g.checkNames(ctx)
	}
	return nil
}

func (g *group) expand(ctx *render.PhaseContext) {
	if ctx.Node().ChildCount() > 0 {
		return
	}

	children := slices.Clone(g.desc.Children)
	slices.SortStableFunc(children, func(a, b Description) int {
		return expansionRank(a.Kind) - expansionRank(b.Kind)
	})

	for _, desc := range children {
		child, ok := newComponent(desc, g.env)
		if !ok {
			ctx.Errorf("unknown component kind %q for %q", desc.Kind, desc.Name)
			continue
		}
		ctx.AddChild(child)
	}

	logger := ctx.Logger()
	logger.Debug().Int("children", ctx.Node().ChildCount()).Msg("expanded")
}

func (g *group) place(ctx *render.PhaseContext, place func(*render.PhaseContext) bool) {
	size, ok := measure(ctx.Node())
	if !ok {
		ctx.Retry()
		return
	}
	g.size = size
	place(ctx)
}

func (g *group) schOrigin() Point {
	return Point{X: g.sch.X - g.size.W/2 + groupPadding, Y: g.sch.Y - g.size.H/2 + groupPadding}
}

func (g *group) pcbOrigin() Point {
	return Point{X: g.pcb.X - g.size.W/2 + groupPadding, Y: g.pcb.Y - g.size.H/2 + groupPadding}
}

// layoutSchematic hands the children sizes to the solver in the background
// and consumes the slots once it resolves.
func (g *group) layoutSchematic(ctx *render.PhaseContext) error {
	if e, ok := ctx.TakeEffect(layoutSolverEffect); ok {
		slots, err := render.Result[[]Point](e)
		if err != nil || len(slots) != len(g.solving) {
			ctx.Warnf("layout solver failed, falling back to row packing")
			sizes, nodes, _ := measureChildren(ctx.Node())
			slots, _ = pack(sizes, layoutRowWidth)
			g.solving = nodes
		}

		g.schSlots = make(map[*render.Node]Point, len(slots))
		for i, child := range g.solving {
			g.schSlots[child] = slots[i]
		}
		g.solving = nil
		return nil
	}

	if e := ctx.Effect(layoutSolverEffect); e != nil && !e.Resolved() {
		ctx.Retry()
		return nil
	}

	sizes, nodes, ok := measureChildren(ctx.Node())
	if !ok {
		ctx.Retry()
		return nil
	}
	if len(nodes) == 0 {
		g.schSlots = map[*render.Node]Point{}
		return nil
	}

	g.solving = nodes
	delay := g.env.LayoutDelay

	_, err := ctx.RegisterEffect(layoutSolverEffect, func(ctx context.Context) (any, error) {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		slots, _ := pack(sizes, layoutRowWidth)
		return slots, nil
	}, render.RerunOnResolve())
	return err
}

func (g *group) layoutPcb(ctx *render.PhaseContext) {
	sizes, nodes, ok := measureChildren(ctx.Node())
	if !ok {
		ctx.Retry()
		return
	}

	slots, _ := pack(sizes, layoutRowWidth)
	g.pcbSlots = make(map[*render.Node]Point, len(slots))
	for i, child := range nodes {
		g.pcbSlots[child] = slots[i]
	}

	if ctx.Node().Kind() == KindBoard && g.pcb != nil {
		g.out.emit(ctx, "pcb_board", map[string]any{
			"center": *g.pcb,
			"width":  g.size.W,
			"height": g.size.H,
		})
	}
}

func (g *group) checkNames(ctx *render.PhaseContext) {
	seen := map[string]int{}
	order := []string{}

	for child := range ctx.Node().Children() {
		name := child.Name()
		if name == "" {
			continue
		}
		if seen[name] == 0 {
			order = append(order, name)
		}
		seen[name]++
	}

	for _, name := range order {
		if n := seen[name]; n > 1 {
			ctx.Errorf("duplicate name %q used by %d children", name, n)
		}
	}
}
