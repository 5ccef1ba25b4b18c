package shape

import "fmt"

// Kind enumerates the declarative node types.
type Kind int

const (
	KindPart Kind = iota // grouping node, compound of its children

	// Primitives.
	KindBox
	KindCylinder
	KindCone
	KindSphere
	KindTorus
	KindWedge

	// Draw primitives: points, curves and profiles.
	KindPoint
	KindVertex
	KindLine
	KindArc
	KindEllipse
	KindCircle
	KindPolygon
	KindSegment
	KindWire
	KindFace

	// Profile consumers.
	KindPrism
	KindRevol
	KindHalfSpace

	// Operations.
	KindCommon
	KindCut
	KindFuse
	KindFillet
	KindChamfer
	KindOffset
	KindThickSolid
	KindPipe
	KindThruSections
	KindTransform
	KindLinearForm
	KindRevolutionForm

	kindCount
)

var kindNames = [...]string{
	KindPart:           "part",
	KindBox:            "box",
	KindCylinder:       "cylinder",
	KindCone:           "cone",
	KindSphere:         "sphere",
	KindTorus:          "torus",
	KindWedge:          "wedge",
	KindPoint:          "point",
	KindVertex:         "vertex",
	KindLine:           "line",
	KindArc:            "arc",
	KindEllipse:        "ellipse",
	KindCircle:         "circle",
	KindPolygon:        "polygon",
	KindSegment:        "segment",
	KindWire:           "wire",
	KindFace:           "face",
	KindPrism:          "prism",
	KindRevol:          "revol",
	KindHalfSpace:      "half-space",
	KindCommon:         "common",
	KindCut:            "cut",
	KindFuse:           "fuse",
	KindFillet:         "fillet",
	KindChamfer:        "chamfer",
	KindOffset:         "offset",
	KindThickSolid:     "thick-solid",
	KindPipe:           "pipe",
	KindThruSections:   "thru-sections",
	KindTransform:      "transform",
	KindLinearForm:     "linear-form",
	KindRevolutionForm: "revolution-form",
}

func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the kind with the given kebab-case name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown shape kind %q", name)
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, kindCount)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// UsesOperands reports whether the kind builds from operand shapes.
func (k Kind) UsesOperands() bool {
	return k >= KindWire && k < kindCount
}

// IsOperation reports whether the kind is an operation on solids.
func (k Kind) IsOperation() bool {
	return k >= KindCommon && k < kindCount
}

// MinOperands is the number of operands the kind needs before it can build.
func (k Kind) MinOperands() int {
	switch k {
	case KindCommon, KindCut, KindFuse, KindPipe, KindThruSections,
		KindLinearForm, KindRevolutionForm:
		return 2
	case KindWire, KindFace, KindPrism, KindRevol, KindHalfSpace, KindFillet,
		KindChamfer, KindOffset, KindThickSolid, KindTransform:
		return 1
	}
	return 0
}
