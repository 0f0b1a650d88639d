// Package circuit compiles declarative circuit descriptions into a flat
// document of netlist, schematic and PCB records.
package circuit

import "github.com/AnatoleLucet/render"

const (
	PhaseTreeExpansion         render.Phase = "tree-expansion"
	PhaseFootprintResolution   render.Phase = "footprint-resolution"
	PhasePortInitialization    render.Phase = "port-initialization"
	PhaseNetConstruction       render.Phase = "net-construction"
	PhaseSourceNetlist         render.Phase = "source-netlist"
	PhaseSchematicPlacement    render.Phase = "schematic-placement"
	PhaseSchematicLayout       render.Phase = "schematic-layout"
	PhaseSchematicTraceRouting render.Phase = "schematic-trace-routing"
	PhasePcbPlacement          render.Phase = "pcb-placement"
	PhasePcbLayout             render.Phase = "pcb-layout"
	PhasePcbTraceRouting       render.Phase = "pcb-trace-routing"
	PhaseDiagnostics           render.Phase = "diagnostics"
)

var Phases = []render.Phase{
	PhaseTreeExpansion,
	PhaseFootprintResolution,
	PhasePortInitialization,
	PhaseNetConstruction,
	PhaseSourceNetlist,
	PhaseSchematicPlacement,
	PhaseSchematicLayout,
	PhaseSchematicTraceRouting,
	PhasePcbPlacement,
	PhasePcbLayout,
	PhasePcbTraceRouting,
	PhaseDiagnostics,
}

func NewRegistry() (*render.Registry, error) {
	return render.NewRegistry(Phases...)
}
