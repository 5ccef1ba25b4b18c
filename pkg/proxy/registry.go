package proxy

import (
	"fmt"

	"github.com/chazu/declcad/pkg/kernel"
	"github.com/chazu/declcad/pkg/shape"
)

// Strategy turns a node's current parameters into a kernel request
// payload. Strategies always rebuild from the full parameter set.
type Strategy struct {
	Params func(n *shape.Node) kernel.Params
}

// Registry maps each node kind to its construction strategy.
type Registry map[shape.Kind]Strategy

// Lookup returns the strategy for k.
func (r Registry) Lookup(k shape.Kind) (Strategy, error) {
	s, ok := r[k]
	if !ok || s.Params == nil {
		return Strategy{}, fmt.Errorf("no construction strategy for %s", k)
	}
	return s, nil
}

func strategy(fn func(n *shape.Node) kernel.Params) Strategy {
	return Strategy{Params: fn}
}

func boolean(op kernel.BoolOp) Strategy {
	return strategy(func(*shape.Node) kernel.Params { return kernel.BooleanParams{Op: op} })
}

// DefaultRegistry covers every shape kind.
func DefaultRegistry() Registry {
	return Registry{
		shape.KindPart: strategy(func(*shape.Node) kernel.Params { return kernel.CompoundParams{} }),

		shape.KindBox: strategy(func(n *shape.Node) kernel.Params {
			return kernel.BoxParams{DX: n.Float("dx"), DY: n.Float("dy"), DZ: n.Float("dz")}
		}),
		shape.KindCylinder: strategy(func(n *shape.Node) kernel.Params {
			return kernel.CylinderParams{Radius: n.Float("radius"), Height: n.Float("height")}
		}),
		shape.KindCone: strategy(func(n *shape.Node) kernel.Params {
			return kernel.ConeParams{
				Radius1: n.Float("radius1"),
				Radius2: n.Float("radius2"),
				Height:  n.Float("height"),
			}
		}),
		shape.KindSphere: strategy(func(n *shape.Node) kernel.Params {
			return kernel.SphereParams{Radius: n.Float("radius")}
		}),
		shape.KindTorus: strategy(func(n *shape.Node) kernel.Params {
			return kernel.TorusParams{Radius1: n.Float("radius1"), Radius2: n.Float("radius2")}
		}),
		shape.KindWedge: strategy(func(n *shape.Node) kernel.Params {
			return kernel.WedgeParams{
				DX:  n.Float("dx"),
				DY:  n.Float("dy"),
				DZ:  n.Float("dz"),
				LTX: n.Float("ltx"),
			}
		}),

		shape.KindPoint:  strategy(func(*shape.Node) kernel.Params { return kernel.PointParams{} }),
		shape.KindVertex: strategy(func(*shape.Node) kernel.Params { return kernel.PointParams{} }),

		shape.KindLine: strategy(func(n *shape.Node) kernel.Params {
			return kernel.LineParams{Length: n.Float("length")}
		}),
		shape.KindArc: strategy(func(n *shape.Node) kernel.Params {
			return kernel.ArcParams{
				Radius: n.Float("radius"),
				Alpha1: n.Float("alpha1"),
				Alpha2: n.Float("alpha2"),
				Points: n.Points("points"),
			}
		}),
		shape.KindEllipse: strategy(func(n *shape.Node) kernel.Params {
			return kernel.EllipseParams{
				MajorRadius: n.Float("major-radius"),
				MinorRadius: n.Float("minor-radius"),
			}
		}),
		shape.KindCircle: strategy(func(n *shape.Node) kernel.Params {
			return kernel.CircleParams{Radius: n.Float("radius")}
		}),
		shape.KindPolygon: strategy(func(n *shape.Node) kernel.Params {
			return kernel.PolygonParams{Points: n.Points("points"), Closed: n.Bool("closed")}
		}),
		shape.KindSegment: strategy(func(n *shape.Node) kernel.Params {
			return kernel.SegmentParams{Points: n.Points("points")}
		}),
		shape.KindWire: strategy(func(*shape.Node) kernel.Params { return kernel.WireParams{} }),
		shape.KindFace: strategy(func(*shape.Node) kernel.Params { return kernel.FaceParams{} }),

		shape.KindPrism: strategy(func(n *shape.Node) kernel.Params {
			return kernel.PrismParams{Height: n.Float("height")}
		}),
		shape.KindRevol: strategy(func(n *shape.Node) kernel.Params {
			return kernel.RevolParams{Angle: n.Float("angle")}
		}),
		shape.KindHalfSpace: strategy(func(*shape.Node) kernel.Params { return kernel.HalfSpaceParams{} }),

		shape.KindCommon: boolean(kernel.BoolCommon),
		shape.KindCut:    boolean(kernel.BoolCut),
		shape.KindFuse:   boolean(kernel.BoolFuse),

		shape.KindFillet: strategy(func(n *shape.Node) kernel.Params {
			return kernel.FilletParams{
				Radius: n.Float("radius"),
				Edges:  n.Indices("edges"),
				Shape:  kernel.FilletShape(n.Str("shape")),
			}
		}),
		shape.KindChamfer: strategy(func(n *shape.Node) kernel.Params {
			return kernel.ChamferParams{
				Distance:  n.Float("distance"),
				Distance2: n.Float("distance2"),
				Edges:     n.Indices("edges"),
				Faces:     n.Indices("faces"),
			}
		}),
		shape.KindOffset: strategy(func(n *shape.Node) kernel.Params {
			return kernel.OffsetParams{Offset: n.Float("offset")}
		}),
		shape.KindThickSolid: strategy(func(n *shape.Node) kernel.Params {
			return kernel.ThickSolidParams{Thickness: n.Float("thickness"), Faces: n.Indices("faces")}
		}),
		shape.KindPipe: strategy(func(*shape.Node) kernel.Params { return kernel.PipeParams{} }),
		shape.KindThruSections: strategy(func(n *shape.Node) kernel.Params {
			return kernel.ThruSectionsParams{Solid: n.Bool("solid"), Ruled: n.Bool("ruled")}
		}),
		shape.KindTransform: strategy(func(n *shape.Node) kernel.Params {
			return kernel.TransformParams{
				Translate: n.Vec("translate"),
				Rotate:    n.Vec("rotate"),
				Scale:     n.Float("scale"),
				Mirror:    n.Vec("mirror"),
			}
		}),
		shape.KindLinearForm: strategy(func(n *shape.Node) kernel.Params {
			return kernel.LinearFormParams{Direction: n.Vec("direction"), Fuse: n.Bool("fuse")}
		}),
		shape.KindRevolutionForm: strategy(func(n *shape.Node) kernel.Params {
			return kernel.RevolutionFormParams{Angle: n.Float("angle"), Fuse: n.Bool("fuse")}
		}),
	}
}
