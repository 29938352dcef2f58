package autograd

// Edge identifies one specific output slot of one Function node: gradients
// flowing along the edge are delivered to input slot InputNr of Fn. A zero
// Edge (nil Fn) marks an input that does not participate in the graph.
type Edge struct {
	Fn      Function
	InputNr int
}

// IsValid reports whether the edge points at a node.
func (e Edge) IsValid() bool {
	return e.Fn != nil
}
