package circuit

import (
	"encoding/json"
	"fmt"

	"github.com/AnatoleLucet/render"
	"github.com/hashicorp/go-multierror"
)

type Document struct {
	Records []Record `json:"records"`
}

// Assemble collects the records of a settled tree in tree order, followed on
// each node by its diagnostics.
func Assemble(root *render.Node) *Document {
	doc := &Document{Records: []Record{}}

	for n := range root.All() {
		if c := coreOf(n); c != nil {
			doc.Records = append(doc.Records, c.out.records()...)
		}

		for _, d := range n.Diagnostics() {
			fields := map[string]any{
				"message": d.Message,
				"phase":   string(d.Phase),
			}
			if d.Effect != "" {
				fields["effect"] = d.Effect
			}
			doc.Records = append(doc.Records, Record{
				Type:   d.Severity.String(),
				NodeID: n.ID().String(),
				Name:   n.DisplayName(),
				Fields: fields,
			})
		}
	}

	return doc
}

// Filter returns the records of the given type.
func (d *Document) Filter(typ string) []Record {
	var out []Record
	for _, r := range d.Records {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

// Err aggregates every error record, or returns nil.
func (d *Document) Err() error {
	var result *multierror.Error
	for _, r := range d.Filter(render.SeverityError.String()) {
		result = multierror.Append(result, fmt.Errorf("%s: %v", r.Name, r.Fields["message"]))
	}
	return result.ErrorOrNil()
}

func (d *Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
