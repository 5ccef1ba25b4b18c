package shape

import "fmt"

// ValidationError rejects malformed attribute input before it reaches the
// kernel. The node is left unchanged.
type ValidationError struct {
	Node    string // node label, see Node.Label
	Field   string // attribute or parameter name
	Message string
}

func (e *ValidationError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: invalid %s: %s", e.Node, e.Field, e.Message)
}

func (n *Node) invalid(field, format string, args ...any) error {
	return &ValidationError{Node: n.Label(), Field: field, Message: fmt.Sprintf(format, args...)}
}
