package circuit

import (
	"github.com/AnatoleLucet/render"
	"github.com/pkg/errors"
)

const (
	KindBoard     = "board"
	KindGroup     = "group"
	KindResistor  = "resistor"
	KindCapacitor = "capacitor"
	KindChip      = "chip"
	KindNet       = "net"
	KindTrace     = "trace"
	KindPort      = "port"
)

// base is the state every component kind shares.
type base struct {
	env  *Env
	desc Description
	out  outputs

	// centers, once placed
	sch *Point
	pcb *Point
}

func newBase(env *Env, desc Description) base {
	return base{env: env, desc: desc, out: outputs{}}
}

func (b *base) core() *base { return b }

type component interface {
	render.PhaseLogic
	core() *base
}

func coreOf(n *render.Node) *base {
	if n == nil {
		return nil
	}
	if c, ok := n.Logic().(component); ok {
		return c.core()
	}
	return nil
}

func isGroup(n *render.Node) bool {
	return n.Kind() == KindBoard || n.Kind() == KindGroup
}

func isPart(n *render.Node) bool {
	switch n.Kind() {
	case KindResistor, KindCapacitor, KindChip:
		return true
	}
	return false
}

// placeable nodes get a slot in their parent's layouts.
func placeable(n *render.Node) bool {
	return isGroup(n) || isPart(n) || n.Kind() == KindNet
}

var ErrInvalidRoot = errors.New("invalid circuit root")

// Build creates the root node of a description. Only boards and groups can
// be rendered on their own.
func Build(desc Description, env *Env) (*render.Node, error) {
	if env == nil {
		env = DefaultEnv()
	}
	if desc.Kind != KindBoard && desc.Kind != KindGroup {
		return nil, errors.Wrapf(ErrInvalidRoot, "circuit root must be a board or a group, got %q", desc.Kind)
	}

	node, _ := newComponent(desc, env)
	return node, nil
}

func newComponent(desc Description, env *Env) (*render.Node, bool) {
	var logic component

	switch desc.Kind {
	case KindBoard, KindGroup:
		logic = newGroup(env, desc)
	case KindResistor, KindCapacitor, KindChip:
		logic = newPart(env, desc)
	case KindNet:
		logic = newNet(env, desc)
	case KindTrace:
		logic = newTrace(env, desc)
	default:
		return nil, false
	}

	return render.NewNode(desc.Kind, desc.Name, logic), true
}

// expansionRank orders children: components first, then nets, then traces.
func expansionRank(kind string) int {
	switch kind {
	case KindNet:
		return 1
	case KindTrace:
		return 2
	}
	return 0
}

// placeSchematic resolves the schematic center of a placeable node: manual
// coordinates first, then the parent's layout slot. It retries while the
// parent has not laid out yet.
func (b *base) placeSchematic(ctx *render.PhaseContext) bool {
	b.sch = nil
	if p, ok := b.manual("schX", "schY"); ok {
		b.sch = &p
		return true
	}

	parent := ctx.Node().Parent()
	if parent == nil {
		b.sch = &Point{}
		return true
	}

	g, ok := parent.Logic().(*group)
	if !ok {
		return false
	}
	slot, ok := g.schSlots[ctx.Node()]
	if !ok || g.sch == nil {
		ctx.Retry()
		return false
	}

	p := offset(g.schOrigin(), slot)
	b.sch = &p
	return true
}

func (b *base) placePcb(ctx *render.PhaseContext) bool {
	b.pcb = nil
	if p, ok := b.manual("pcbX", "pcbY"); ok {
		b.pcb = &p
		return true
	}

	parent := ctx.Node().Parent()
	if parent == nil {
		b.pcb = &Point{}
		return true
	}

	g, ok := parent.Logic().(*group)
	if !ok {
		return false
	}
	slot, ok := g.pcbSlots[ctx.Node()]
	if !ok || g.pcb == nil {
		ctx.Retry()
		return false
	}

	p := offset(g.pcbOrigin(), slot)
	b.pcb = &p
	return true
}

func (b *base) manual(xKey, yKey string) (Point, bool) {
	x, okX := b.desc.Number(xKey)
	y, okY := b.desc.Number(yKey)
	if !okX && !okY {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}

// measure returns the size a node occupies in its parent's layout. It is not
// known until the footprints of the whole subtree are resolved.
func measure(n *render.Node) (Size, bool) {
	switch {
	case isPart(n):
		if n.Status(PhaseFootprintResolution) != render.StatusComplete {
			return Size{}, false
		}
		return n.Logic().(*part).size, true
	case n.Kind() == KindNet:
		return netLabelSize, true
	case isGroup(n):
		if n.Status(PhaseTreeExpansion) != render.StatusComplete {
			return Size{}, false
		}
		sizes, _, ok := measureChildren(n)
		if !ok {
			return Size{}, false
		}
		_, total := pack(sizes, layoutRowWidth)
		return Size{W: total.W + 2*groupPadding, H: total.H + 2*groupPadding}, true
	}
	return Size{}, false
}

func measureChildren(n *render.Node) ([]Size, []*render.Node, bool) {
	var (
		sizes []Size
		nodes []*render.Node
	)
	for child := range n.Children() {
		if !placeable(child) {
			continue
		}
		s, ok := measure(child)
		if !ok {
			return nil, nil, false
		}
		sizes = append(sizes, s)
		nodes = append(nodes, child)
	}
	return sizes, nodes, true
}
