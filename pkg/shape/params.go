package shape

import (
	"fmt"
	"math"
	"reflect"

	"github.com/chazu/declcad/pkg/geom"
)

// ParamType is the value type of a kind-specific parameter.
type ParamType int

const (
	ParamFloat   ParamType = iota // float64
	ParamBool                     // bool
	ParamVec                      // geom.Vec3
	ParamPoints                   // []geom.Vec3
	ParamIndices                  // []int, edge or face indices
	ParamString                   // string, one of a fixed set of names
)

func (t ParamType) String() string {
	switch t {
	case ParamFloat:
		return "float"
	case ParamBool:
		return "bool"
	case ParamVec:
		return "vector"
	case ParamPoints:
		return "point list"
	case ParamIndices:
		return "index list"
	case ParamString:
		return "name"
	default:
		return fmt.Sprintf("ParamType(%d)", int(t))
	}
}

// ParamDef describes one constructor parameter of a kind.
type ParamDef struct {
	Name    string
	Type    ParamType
	Default any
}

// schemas lists the constructor parameters for each kind. Sign and range
// checks are left to the kernel so that degenerate values surface as build
// errors on the node.
var schemas = map[Kind][]ParamDef{
	KindBox: {
		{"dx", ParamFloat, 1.0},
		{"dy", ParamFloat, 1.0},
		{"dz", ParamFloat, 1.0},
	},
	KindCylinder: {
		{"radius", ParamFloat, 1.0},
		{"height", ParamFloat, 1.0},
	},
	KindCone: {
		{"radius1", ParamFloat, 1.0},
		{"radius2", ParamFloat, 0.0},
		{"height", ParamFloat, 1.0},
	},
	KindSphere: {
		{"radius", ParamFloat, 1.0},
	},
	KindTorus: {
		{"radius1", ParamFloat, 1.0},
		{"radius2", ParamFloat, 0.25},
	},
	KindWedge: {
		{"dx", ParamFloat, 1.0},
		{"dy", ParamFloat, 1.0},
		{"dz", ParamFloat, 1.0},
		{"ltx", ParamFloat, 0.0},
	},
	KindLine: {
		{"length", ParamFloat, 1.0},
	},
	KindArc: {
		{"radius", ParamFloat, 1.0},
		{"alpha1", ParamFloat, 0.0},
		{"alpha2", ParamFloat, 90.0},
		{"points", ParamPoints, []geom.Vec3(nil)},
	},
	KindEllipse: {
		{"major-radius", ParamFloat, 2.0},
		{"minor-radius", ParamFloat, 1.0},
	},
	KindCircle: {
		{"radius", ParamFloat, 1.0},
	},
	KindPolygon: {
		{"points", ParamPoints, []geom.Vec3(nil)},
		{"closed", ParamBool, false},
	},
	KindSegment: {
		{"points", ParamPoints, []geom.Vec3(nil)},
	},
	KindPrism: {
		{"height", ParamFloat, 1.0},
	},
	KindRevol: {
		{"angle", ParamFloat, 360.0},
	},
	KindFillet: {
		{"radius", ParamFloat, 1.0},
		{"edges", ParamIndices, []int(nil)},
		{"shape", ParamString, "rational"},
	},
	KindChamfer: {
		{"distance", ParamFloat, 1.0},
		{"distance2", ParamFloat, 0.0},
		{"edges", ParamIndices, []int(nil)},
		{"faces", ParamIndices, []int(nil)},
	},
	KindOffset: {
		{"offset", ParamFloat, 1.0},
	},
	KindThickSolid: {
		{"thickness", ParamFloat, 1.0},
		{"faces", ParamIndices, []int(nil)},
	},
	KindThruSections: {
		{"solid", ParamBool, true},
		{"ruled", ParamBool, false},
	},
	KindTransform: {
		{"translate", ParamVec, geom.Origin},
		{"rotate", ParamVec, geom.Origin},
		{"scale", ParamFloat, 1.0},
		{"mirror", ParamVec, geom.Origin},
	},
	KindLinearForm: {
		{"direction", ParamVec, geom.ZDir},
		{"fuse", ParamBool, true},
	},
	KindRevolutionForm: {
		{"angle", ParamFloat, 360.0},
		{"fuse", ParamBool, true},
	},
}

// Schema returns the parameter specs of kind k in declaration order.
func Schema(k Kind) []ParamDef {
	return append([]ParamDef(nil), schemas[k]...)
}

func paramDef(k Kind, name string) (ParamDef, bool) {
	for _, s := range schemas[k] {
		if s.Name == name {
			return s, true
		}
	}
	return ParamDef{}, false
}

func defaultParams(k Kind) map[string]any {
	m := make(map[string]any, len(schemas[k]))
	for _, s := range schemas[k] {
		m[s.Name] = s.Default
	}
	return m
}

// coerce converts v to the Go type of t. Integers are accepted where a
// float is expected and integral floats where an index is expected.
func coerce(t ParamType, v any) (any, error) {
	switch t {
	case ParamFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", v)
		}
		if !geom.IsFinite(f) {
			return nil, fmt.Errorf("non-finite value %v", f)
		}
		return f, nil
	case ParamBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a bool, got %T", v)
		}
		return b, nil
	case ParamVec:
		vec, err := toVec(v)
		if err != nil {
			return nil, err
		}
		return vec, nil
	case ParamPoints:
		pts, ok := v.([]geom.Vec3)
		if !ok {
			if vs, isAny := v.([]any); isAny {
				pts = make([]geom.Vec3, 0, len(vs))
				for _, e := range vs {
					p, err := toVec(e)
					if err != nil {
						return nil, err
					}
					pts = append(pts, p)
				}
				ok = true
			}
		}
		if !ok {
			return nil, fmt.Errorf("expected a point list, got %T", v)
		}
		for _, p := range pts {
			if !p.IsFinite() {
				return nil, fmt.Errorf("non-finite point %v", p)
			}
		}
		return append([]geom.Vec3(nil), pts...), nil
	case ParamIndices:
		return toIndices(v)
	case ParamString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a name, got %T", v)
		}
		return str, nil
	}
	return nil, fmt.Errorf("unknown parameter type %v", t)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func toVec(v any) (geom.Vec3, error) {
	var out geom.Vec3
	switch t := v.(type) {
	case geom.Vec3:
		out = t
	case [3]float64:
		out = geom.V(t[0], t[1], t[2])
	case []float64:
		if len(t) != 3 {
			return out, fmt.Errorf("expected 3 components, got %d", len(t))
		}
		out = geom.V(t[0], t[1], t[2])
	default:
		return out, fmt.Errorf("expected a vector, got %T", v)
	}
	if !out.IsFinite() {
		return out, fmt.Errorf("non-finite vector %v", out)
	}
	return out, nil
}

func toIndices(v any) ([]int, error) {
	switch t := v.(type) {
	case []int:
		return append([]int(nil), t...), nil
	case []int64:
		out := make([]int, len(t))
		for i, x := range t {
			out[i] = int(x)
		}
		return out, nil
	case []float64:
		out := make([]int, len(t))
		for i, x := range t {
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("index %v is not an integer", x)
			}
			out[i] = int(x)
		}
		return out, nil
	case []any:
		out := make([]int, 0, len(t))
		for _, e := range t {
			f, ok := toFloat(e)
			if !ok || f != math.Trunc(f) {
				return nil, fmt.Errorf("index %v is not an integer", e)
			}
			out = append(out, int(f))
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected an index list, got %T", v)
}

func paramEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
