package circuit

import (
	"fmt"
	"math"

	"github.com/AnatoleLucet/render"
)

var defaultFootprint = map[string]string{
	KindResistor:  "0402",
	KindCapacitor: "0603",
	KindChip:      "soic8",
}

// upper bound on ports when no footprint limits them
const maxPins = 256

var netlistProps = []string{"resistance", "capacitance", "manufacturerPartNumber"}

// part covers resistors, capacitors and chips.
type part struct {
	base

	footprint *Footprint
	size      Size
}

func newPart(env *Env, desc Description) *part {
	return &part{base: newBase(env, desc)}
}

func (p *part) RunPhase(ctx *render.PhaseContext) error {
	p.out.reset(ctx.Phase())

	switch ctx.Phase() {
	case PhaseFootprintResolution:
		p.resolveFootprint(ctx)
	case PhasePortInitialization:
		p.initPorts(ctx)
	case PhaseSourceNetlist:
		p.emitSource(ctx)
	case PhaseSchematicPlacement:
		if p.placeSchematic(ctx) {
			p.out.emit(ctx, "schematic_component", map[string]any{
				"center": *p.sch,
				"size":   p.size,
			})
		}
	case PhasePcbPlacement:
		if p.placePcb(ctx) {
			fields := map[string]any{
				"center": *p.pcb,
				"size":   p.size,
				"layer":  "top",
			}
			if p.footprint != nil {
				fields["footprint"] = p.footprint.Name
			}
			p.out.emit(ctx, "pcb_component", fields)
		}
	case PhaseDiagnostics:
		p.checkPins(ctx)
	}
	return nil
}

func (p *part) resolveFootprint(ctx *render.PhaseContext) {
	name, ok := p.desc.String("footprint")
	if !ok {
		name = defaultFootprint[ctx.Node().Kind()]
	}

	fp, ok := p.env.footprint(name)
	if !ok {
		ctx.Errorf("unknown footprint %q", name)
		p.footprint = nil
		p.size = Size{W: 1, H: 1}
		if pins := p.requestedPins(); pins > maxPins {
			ctx.Errorf("%d pins requested, at most %d are supported", pins, maxPins)
		}
		return
	}

	p.footprint = &fp
	p.size = Size{W: fp.Width, H: fp.Height}

	if pins := p.requestedPins(); pins > fp.Pads {
		ctx.Errorf("%d pins do not fit footprint %s with %d pads", pins, fp.Name, fp.Pads)
	}
}

// pinCount is the number of ports the part gets: what the description asks
// for, never more than the footprint has pads.
func (p *part) pinCount() int {
	n := p.requestedPins()
	if p.footprint != nil {
		return min(n, p.footprint.Pads)
	}
	return min(n, maxPins)
}

func (p *part) requestedPins() int {
	if n, ok := p.desc.Number("pins"); ok && n >= 1 {
		return int(min(n, math.MaxInt32))
	}
	if p.desc.Kind == KindChip {
		if p.footprint != nil {
			return p.footprint.Pads
		}
		return 8
	}
	return 2
}

func (p *part) initPorts(ctx *render.PhaseContext) {
	if ctx.Node().ChildCount() > 0 {
		return
	}

	n := p.pinCount()
	for i := range n {
		ctx.AddChild(newPort(p.env, fmt.Sprintf("pin%d", i+1), pinOffset(i, n, p.size)))
	}
}

// pinOffset spreads pins along the left side top to bottom, then along the
// right side bottom to top. Two-pin parts get one pin per side.
func pinOffset(i, n int, size Size) Point {
	perSide := int(math.Ceil(float64(n) / 2))
	pitch := size.H / float64(perSide)

	if i < perSide {
		return Point{X: -size.W / 2, Y: -size.H/2 + pitch*(float64(i)+0.5)}
	}
	k := i - perSide
	return Point{X: size.W / 2, Y: size.H/2 - pitch*(float64(k)+0.5)}
}

func (p *part) emitSource(ctx *render.PhaseContext) {
	fields := map[string]any{
		"ftype": "simple_" + ctx.Node().Kind(),
	}
	if p.footprint != nil {
		fields["footprint"] = p.footprint.Name
	}
	for _, key := range netlistProps {
		if v, ok := p.desc.Props[key]; ok {
			fields[key] = v
		}
	}
	p.out.emit(ctx, "source_component", fields)
}

func (p *part) checkPins(ctx *render.PhaseContext) {
	for child := range ctx.Node().Children() {
		port, ok := child.Logic().(*port)
		if !ok {
			continue
		}
		if len(port.connections) == 0 {
			ctx.Warnf("pin %s of %s is not connected", child.Name(), ctx.Node().Name())
		}
	}
}
