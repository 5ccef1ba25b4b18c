package shape

import "fmt"

// Parent returns the owning node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the owned child list.
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

// Destroyed reports whether Destroy has been called on n or an ancestor.
func (n *Node) Destroyed() bool { return n.destroyed }

// AddChild appends c to n's children. A node has at most one parent and the
// tree may not contain cycles.
func (n *Node) AddChild(c *Node) error {
	switch {
	case c == nil:
		return n.invalid("children", "nil child")
	case n.destroyed || c.destroyed:
		return n.invalid("children", "destroyed node")
	case c.parent != nil:
		return n.invalid("children", "%s already has parent %s", c.Label(), c.parent.Label())
	}
	for a := n; a != nil; a = a.parent {
		if a == c {
			return n.invalid("children", "adding %s would create a cycle", c.Label())
		}
	}
	c.parent = n
	n.children = append(n.children, c)
	n.notify(Change{Field: FieldChildren, New: c})
	return nil
}

// RemoveChild detaches c from n without destroying it.
func (n *Node) RemoveChild(c *Node) bool {
	for i, ch := range n.children {
		if ch == c {
			n.children = append(n.children[:i:i], n.children[i+1:]...)
			c.parent = nil
			n.notify(Change{Field: FieldChildren, Old: c})
			return true
		}
	}
	return false
}

// Operands returns the shapes an operation builds from: the explicit
// operands if any were set, otherwise the children.
func (n *Node) Operands() []*Node {
	if !n.kind.UsesOperands() {
		return nil
	}
	if n.operands != nil {
		return append([]*Node(nil), n.operands...)
	}
	return n.Children()
}

// ExplicitOperands reports whether SetOperands has supplied the operands.
func (n *Node) ExplicitOperands() bool { return n.operands != nil }

// SetOperands replaces the operand references. Operands are shared, not
// owned: they may be children of any node. Passing no operands reverts to
// using the children.
func (n *Node) SetOperands(ops ...*Node) error {
	if !n.kind.UsesOperands() {
		return n.invalid("operands", "%s takes no operands", n.kind)
	}
	for i, op := range ops {
		switch {
		case op == nil:
			return n.invalid("operands", "operand %d is nil", i)
		case op == n:
			return n.invalid("operands", "%s cannot be its own operand", n.Label())
		case op.destroyed:
			return n.invalid("operands", "operand %s is destroyed", op.Label())
		}
	}
	var next []*Node
	if len(ops) > 0 {
		next = append([]*Node{}, ops...)
	}
	if sameNodes(n.operands, next) && (n.operands == nil) == (next == nil) {
		return nil
	}
	old := n.operands
	n.operands = next
	n.notify(Change{Field: FieldOperands, Old: old, New: next})
	return nil
}

func sameNodes(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Destroy detaches n from its parent and tears down its subtree, children
// first. Each destroyed node reports FieldDestroyed and then drops its
// observers.
func (n *Node) Destroy() {
	if n.destroyed {
		return
	}
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
	n.destroy()
}

func (n *Node) destroy() {
	for _, c := range n.children {
		c.parent = nil
		c.destroy()
	}
	n.children = nil
	n.destroyed = true
	n.notify(Change{Field: FieldDestroyed})
	n.observers = nil
}

// Walk visits n and its descendants depth first, parents before children.
// Returning false from fn skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Root returns the topmost ancestor of n.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Path returns the labels from the root down to n, joined with "/".
func (n *Node) Path() string {
	if n.parent == nil {
		return n.Label()
	}
	return fmt.Sprintf("%s/%s", n.parent.Path(), n.Label())
}
