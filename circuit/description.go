package circuit

import (
	"io"
	"math"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Description is one element of a declarative circuit, e.g.
//
//	kind = "resistor"
//	name = "R1"
//	[props]
//	resistance = "10k"
type Description struct {
	Kind     string         `toml:"kind" json:"kind"`
	Name     string         `toml:"name" json:"name"`
	Props    map[string]any `toml:"props" json:"props,omitempty"`
	Children []Description  `toml:"children" json:"children,omitempty"`
}

func DecodeDescription(r io.Reader) (Description, error) {
	var desc Description
	if _, err := toml.NewDecoder(r).Decode(&desc); err != nil {
		return Description{}, errors.Wrap(err, "decode circuit description")
	}
	return desc, nil
}

func LoadDescription(path string) (Description, error) {
	var desc Description
	if _, err := toml.DecodeFile(path, &desc); err != nil {
		return Description{}, errors.Wrapf(err, "load circuit description %s", path)
	}
	return desc, nil
}

func (d Description) String(key string) (string, bool) {
	v, ok := d.Props[key].(string)
	return v, ok
}

// Number reads a numeric prop. TOML integers, TOML floats and JSON numbers are
// all accepted.
func (d Description) Number(key string) (float64, bool) {
	switch v := d.Props[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
