package shape

import (
	"fmt"

	"github.com/samber/lo"
)

// Reconcile applies a freshly evaluated tree onto a live one. Attributes and
// parameters are written through the public setters, so only effective
// differences reach observers. Children are matched by plan name: the node
// name when set, otherwise kind and ordinal among unnamed siblings of that
// kind. Matched nodes of the same kind are kept and updated in place;
// unmatched live nodes are destroyed and new ones are adopted from next.
//
// ReconcileRoots does the same for a list of roots and returns the live
// root list. Nodes of next that were not adopted must not be reused.
func ReconcileRoots(cur, next []*Node) []*Node {
	r := &reconciler{mapping: make(map[*Node]*Node)}
	roots := r.list(cur, next, nil)
	r.remapOperands()
	return roots
}

// Reconcile updates cur to match next and returns the live node, which is
// cur unless the kinds differ.
func Reconcile(cur, next *Node) *Node {
	r := &reconciler{mapping: make(map[*Node]*Node)}
	live := r.node(cur, next)
	r.remapOperands()
	return live
}

type reconciler struct {
	mapping map[*Node]*Node // node in next -> live node
	pairs   [][2]*Node      // live, next
}

// planNames names each node uniquely among its siblings.
func planNames(nodes []*Node) []string {
	ordinal := make(map[Kind]int)
	return lo.Map(nodes, func(n *Node, _ int) string {
		if n.name != "" {
			return n.name
		}
		i := ordinal[n.kind]
		ordinal[n.kind]++
		return fmt.Sprintf("%s#%d", n.kind, i)
	})
}

// list matches next against cur and returns the resulting live list. parent
// is the live owner of the list, or nil for roots.
func (r *reconciler) list(cur, next []*Node, parent *Node) []*Node {
	curNames := planNames(cur)
	byName := make(map[string]*Node, len(cur))
	for i, c := range cur {
		byName[curNames[i]] = c
	}

	out := make([]*Node, 0, len(next))
	for i, nn := range planNames(next) {
		c, ok := byName[nn]
		if ok {
			delete(byName, nn)
		}
		out = append(out, r.node(c, next[i]))
	}
	for i, c := range cur {
		if byName[curNames[i]] == c {
			c.Destroy()
		}
	}

	if parent != nil && !sameNodes(parent.children, out) {
		for _, c := range out {
			if c.parent != parent {
				if c.parent != nil {
					c.parent.RemoveChild(c)
				}
				c.parent = parent
			}
		}
		old := parent.children
		parent.children = out
		parent.notify(Change{Field: FieldChildren, Old: old, New: out})
	}
	return out
}

// node updates cur from next, or adopts next when cur cannot be kept.
func (r *reconciler) node(cur, next *Node) *Node {
	if cur == nil || cur.destroyed || cur.kind != next.kind {
		if cur != nil {
			cur.Destroy()
		}
		r.adopt(next)
		return next
	}
	r.mapping[next] = cur
	r.pairs = append(r.pairs, [2]*Node{cur, next})
	copyAttributes(cur, next)
	r.list(cur.children, next.children, cur)
	return cur
}

// adopt takes over a subtree of next unchanged.
func (r *reconciler) adopt(next *Node) {
	next.Walk(func(n *Node) bool {
		r.mapping[n] = n
		r.pairs = append(r.pairs, [2]*Node{n, n})
		return true
	})
}

// remapOperands points operand references at live nodes.
func (r *reconciler) remapOperands() {
	for _, p := range r.pairs {
		live, next := p[0], p[1]
		if next.operands == nil {
			if live.operands != nil {
				_ = live.SetOperands()
			}
			continue
		}
		ops := lo.Map(next.operands, func(op *Node, _ int) *Node {
			if m, ok := r.mapping[op]; ok {
				return m
			}
			return op
		})
		_ = live.SetOperands(ops...)
	}
}

func copyAttributes(cur, next *Node) {
	cur.SetName(next.name)
	_ = cur.SetTolerance(next.tolerance)
	_ = cur.SetAxis(next.axis)
	_ = cur.SetX(next.x)
	_ = cur.SetY(next.y)
	_ = cur.SetZ(next.z)
	_ = cur.SetColor(next.color)
	_ = cur.SetMaterial(next.material)
	_ = cur.SetTransparency(next.transparency)
	for _, name := range cur.ParamNames() {
		if v, ok := next.params[name]; ok {
			_ = cur.SetParam(name, v)
		}
	}
}
