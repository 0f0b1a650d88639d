package internal

import (
	"iter"

	"github.com/pkg/errors"
)

// AddChild appends child to the node. When the node belongs to a driver the
// child joins it too and, during a sweep, is queued for the same sweep.
func (n *Node) AddChild(child *Node) *Node {
	if child == nil {
		panic(&ConfigError{Node: n.DisplayName(), Err: errors.Wrap(ErrInvariant, "nil child")})
	}
	if child.parent != nil || child == n.Root() {
		panic(&ConfigError{Node: child.DisplayName(), Err: errors.Wrap(ErrInvariant, "node already has a parent")})
	}

	child.parent = n
	n.children = append(n.children, child)
	child.setDepth(n.depth + 1)

	if n.driver != nil {
		n.driver.adopt(child)
	}

	return child
}

func (n *Node) setDepth(depth int) {
	n.depth = depth
	for _, child := range n.children {
		child.setDepth(depth + 1)
	}
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Depth() int { return n.depth }

func (n *Node) Root() *Node {
	root := n
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Children iterates the children in insertion order, including children
// appended while iterating.
func (n *Node) Children() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for i := 0; i < len(n.children); i++ {
			if !yield(n.children[i]) {
				return
			}
		}
	}
}

func (n *Node) ChildCount() int { return len(n.children) }

// Child returns the i-th child, or nil when out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Walk visits the subtree in parent-before-children order. Returning false
// from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for i := 0; i < len(n.children); i++ {
		n.children[i].Walk(fn)
	}
}

// All iterates the subtree in parent-before-children order.
func (n *Node) All() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		n.all(yield)
	}
}

func (n *Node) all(yield func(*Node) bool) bool {
	if !yield(n) {
		return false
	}
	for i := 0; i < len(n.children); i++ {
		if !n.children[i].all(yield) {
			return false
		}
	}
	return true
}

// Find returns the first node of the subtree matching pred.
func (n *Node) Find(pred func(*Node) bool) *Node {
	for node := range n.All() {
		if pred(node) {
			return node
		}
	}
	return nil
}

// capture runs fn and turns a panic into an error.
func capture(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *ConfigError:
				err = v
			case error:
				err = errors.Wrap(v, "panic")
			default:
				err = errors.Errorf("panic: %v", v)
			}
		}
	}()

	return fn()
}
