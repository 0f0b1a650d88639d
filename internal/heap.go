package internal

// WorkHeap holds the nodes that have work in the current sweep, bucketed by
// tree depth. Draining goes from the shallowest bucket to the deepest, so a
// parent is always visited before the children it creates, and children
// inserted mid-drain are picked up by the same drain.
type WorkHeap struct {
	min int
	max int

	nodes [][]*Node // [depth]fifo

	lookup map[*Node]struct{} // queued nodes

	draining bool
}

func NewHeap() *WorkHeap {
	return &WorkHeap{
		nodes:  make([][]*Node, 16),
		lookup: make(map[*Node]struct{}),
	}
}

// Insert queues node. It returns false when the node is already queued or
// when its depth has already been drained in this pass; the next sweep will
// see it then.
func (h *WorkHeap) Insert(node *Node) bool {
	if _, ok := h.lookup[node]; ok {
		return false
	}

	depth := node.depth
	if h.draining && depth < h.min {
		return false
	}

	for len(h.nodes) <= depth {
		h.nodes = append(h.nodes, nil)
	}

	h.lookup[node] = struct{}{}
	h.nodes[depth] = append(h.nodes[depth], node)

	if depth > h.max {
		h.max = depth
	}

	return true
}

func (h *WorkHeap) Len() int { return len(h.lookup) }

func (h *WorkHeap) Contains(node *Node) bool {
	_, ok := h.lookup[node]
	return ok
}

// Drain processes every queued node in depth order, leaving the heap empty.
// It stops at the first error and discards what is left.
func (h *WorkHeap) Drain(process func(*Node) error) error {
	h.draining = true
	defer h.reset()

	for h.min = 0; h.min <= h.max; h.min++ {
		// process may append to the bucket being drained
		for i := 0; i < len(h.nodes[h.min]); i++ {
			node := h.nodes[h.min][i]
			delete(h.lookup, node)

			if err := process(node); err != nil {
				return err
			}
		}
		h.nodes[h.min] = h.nodes[h.min][:0]
	}

	return nil
}

func (h *WorkHeap) reset() {
	for i := range h.nodes {
		h.nodes[i] = h.nodes[i][:0]
	}
	clear(h.lookup)

	h.min = 0
	h.max = 0
	h.draining = false
}
