package circuit

import "github.com/AnatoleLucet/render"

// Record is one entry of the output document.
type Record struct {
	Type   string         `json:"type"`
	NodeID string         `json:"node_id"`
	Name   string         `json:"name,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// outputs holds the records a node emitted, per phase. A phase run replaces
// whatever the previous run of that phase emitted.
type outputs map[render.Phase][]Record

func (o outputs) reset(phase render.Phase) {
	delete(o, phase)
}

func (o outputs) emit(ctx *render.PhaseContext, typ string, fields map[string]any) {
	node := ctx.Node()
	o[ctx.Phase()] = append(o[ctx.Phase()], Record{
		Type:   typ,
		NodeID: node.ID().String(),
		Name:   node.Name(),
		Fields: fields,
	})
}

func (o outputs) records() []Record {
	var out []Record
	for _, p := range Phases {
		out = append(out, o[p]...)
	}
	return out
}
