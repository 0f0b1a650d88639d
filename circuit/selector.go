package circuit

import (
	"strings"

	"github.com/AnatoleLucet/render"
	"github.com/pkg/errors"
)

// selector addresses a trace endpoint: ".R1 > .pin1" for a port of a part,
// "net.GND" or ".GND" for a net.
type selector struct {
	raw       string
	component string
	port      string
	net       bool
}

func parseSelector(raw string) (selector, error) {
	s := selector{raw: raw}
	raw = strings.TrimSpace(raw)

	if name, ok := strings.CutPrefix(raw, "net."); ok {
		if name == "" {
			return s, errors.Errorf("empty net name in selector %q", s.raw)
		}
		s.component = name
		s.net = true
		return s, nil
	}

	parts := strings.Split(raw, ">")
	if len(parts) > 2 {
		return s, errors.Errorf("selector %q is nested too deeply", s.raw)
	}

	for i, part := range parts {
		name, ok := strings.CutPrefix(strings.TrimSpace(part), ".")
		if !ok || name == "" {
			return s, errors.Errorf("malformed selector %q", s.raw)
		}
		if i == 0 {
			s.component = name
		} else {
			s.port = name
		}
	}
	return s, nil
}

type resolution int

const (
	resolved resolution = iota
	// the target may still appear or is not ready yet
	pending
	missing
)

// resolve looks the selector up in the whole tree. It reports pending until
// every group has expanded and the target part has its ports.
func (s selector) resolve(root *render.Node) (*render.Node, resolution) {
	for n := range root.All() {
		if isGroup(n) && n.Status(PhaseTreeExpansion) != render.StatusComplete {
			return nil, pending
		}
	}

	target := root.Find(func(n *render.Node) bool {
		if n.Name() != s.component {
			return false
		}
		if s.net {
			return n.Kind() == KindNet
		}
		return isPart(n) || n.Kind() == KindNet
	})
	if target == nil {
		return nil, missing
	}

	if target.Kind() == KindNet {
		if s.port != "" {
			return nil, missing
		}
		return target, resolved
	}

	if s.port == "" {
		return nil, missing
	}
	if target.Status(PhasePortInitialization) != render.StatusComplete {
		return nil, pending
	}

	port := target.Find(func(n *render.Node) bool {
		return n.Kind() == KindPort && n.Name() == s.port && n.Parent() == target
	})
	if port == nil {
		return nil, missing
	}
	return port, resolved
}
