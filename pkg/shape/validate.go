package shape

import "fmt"

// Severity indicates whether a validation finding blocks building or is
// merely informational.
type Severity int

const (
	SeverityError   Severity = iota // blocks building
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Issue describes a single structural finding.
type Issue struct {
	Node     *Node // nil if tree-level
	Message  string
	Severity Severity
}

func (i Issue) Error() string {
	if i.Node == nil {
		return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Node.Label(), i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate runs the structural checks over the trees rooted at roots and
// every node they reference. It never mutates the tree.
func Validate(roots []*Node) []Issue {
	nodes := collect(roots)
	var issues []Issue
	issues = append(issues, validateAcyclic(nodes)...)
	issues = append(issues, validateOperands(nodes)...)
	issues = append(issues, validateNames(nodes)...)
	return issues
}

// collect returns every node reachable through children and operands, in
// first-visit order.
func collect(roots []*Node) []*Node {
	seen := make(map[*Node]bool)
	var out []*Node
	var visit func(n *Node)
	visit = func(n *Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
		for _, c := range n.children {
			visit(c)
		}
		for _, op := range n.operands {
			visit(op)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return out
}

// dependencies returns the nodes n builds from.
func dependencies(n *Node) []*Node {
	if n.kind == KindPart {
		return n.children
	}
	return n.Operands()
}

// validateAcyclic checks the build dependencies for cycles using DFS with
// 3-color marking. White (0) = unvisited, gray (1) = on the current path,
// black (2) = fully explored.
func validateAcyclic(nodes []*Node) []Issue {
	const (
		white = iota
		gray
		black
	)

	color := make(map[*Node]int)
	var issues []Issue

	var visit func(n *Node) bool // true if a cycle was found
	visit = func(n *Node) bool {
		switch color[n] {
		case black:
			return false
		case gray:
			issues = append(issues, Issue{
				Node:     n,
				Message:  "cycle detected: node depends on itself through its operands",
				Severity: SeverityError,
			})
			return true
		}
		color[n] = gray
		for _, d := range dependencies(n) {
			if visit(d) {
				return true
			}
		}
		color[n] = black
		return false
	}

	for _, n := range nodes {
		if color[n] == white {
			visit(n)
		}
	}
	return issues
}

// validateOperands reports destroyed operands and operations that cannot
// build yet.
func validateOperands(nodes []*Node) []Issue {
	var issues []Issue
	for _, n := range nodes {
		if !n.kind.UsesOperands() {
			continue
		}
		ops := n.Operands()
		for _, op := range ops {
			if op.destroyed {
				issues = append(issues, Issue{
					Node:     n,
					Message:  fmt.Sprintf("operand %s was destroyed", op.Label()),
					Severity: SeverityError,
				})
			}
		}
		if need := n.kind.MinOperands(); len(ops) < need {
			issues = append(issues, Issue{
				Node:     n,
				Message:  fmt.Sprintf("%s needs %d operands, has %d", n.kind, need, len(ops)),
				Severity: SeverityWarning,
			})
		}
	}
	return issues
}

// validateNames checks that user-assigned names are unique.
func validateNames(nodes []*Node) []Issue {
	first := make(map[string]*Node)
	var issues []Issue
	for _, n := range nodes {
		if n.name == "" {
			continue
		}
		if prev, ok := first[n.name]; ok && prev != n {
			issues = append(issues, Issue{
				Node:     n,
				Message:  fmt.Sprintf("duplicate name %q", n.name),
				Severity: SeverityError,
			})
			continue
		}
		first[n.name] = n
	}
	return issues
}
