package kernel

import (
	"math"
	"sort"

	"github.com/chazu/declcad/pkg/geom"
)

// Topology is a read-only view of a shape's boundary. Indices are stable
// for a given handle, so edge and face selections made against one build
// stay meaningful until the next rebuild.
type Topology struct {
	Edges  []Edge  `json:"edges"`
	Faces  []Face  `json:"faces"`
	Shells []Shell `json:"shells"`
}

// Edge is a boundary curve between two faces. Faces[1] is -1 for a free
// (unshared) edge.
type Edge struct {
	Index    int            `json:"index"`
	Faces    [2]int         `json:"faces"`
	Length   float64        `json:"length"`
	Segments [][2]geom.Vec3 `json:"segments"`
}

// Face is a smooth region of the boundary.
type Face struct {
	Index     int       `json:"index"`
	Normal    geom.Vec3 `json:"normal"` // area-weighted average
	Area      float64   `json:"area"`
	Triangles []int     `json:"triangles"`
}

// Shell is a connected set of faces.
type Shell struct {
	Index int   `json:"index"`
	Faces []int `json:"faces"`
}

// IsEmpty reports whether the topology has no faces and no edges.
func (t *Topology) IsEmpty() bool {
	return t == nil || (len(t.Faces) == 0 && len(t.Edges) == 0)
}

// FaceAngle is the largest angle, in degrees, between adjacent triangle
// normals that TopologyFromMesh still treats as one smooth face.
const FaceAngle = 20.0

// TopologyFromMesh derives faces, edges and shells from a triangle mesh.
// Vertices closer than weld are merged first. Adjacent triangles whose
// normals differ by less than FaceAngle share a face; every run of mesh
// edges separating the same two faces becomes one Edge. The result is
// deterministic for a given mesh.
func TopologyFromMesh(m *Mesh, weld float64) *Topology {
	topo := &Topology{}
	if m == nil || m.TriangleCount() == 0 {
		return topo
	}
	if weld <= 0 {
		weld = 1e-6
	}

	// Weld vertices on a quantized grid.
	type key [3]int64
	welded := make(map[key]int)
	var points []geom.Vec3
	remap := make([]int, m.VertexCount())
	for i := range remap {
		v := m.Vertex(uint32(i))
		k := key{
			int64(math.Round(v.X / weld)),
			int64(math.Round(v.Y / weld)),
			int64(math.Round(v.Z / weld)),
		}
		idx, ok := welded[k]
		if !ok {
			idx = len(points)
			welded[k] = idx
			points = append(points, v)
		}
		remap[i] = idx
	}

	// Collect non-degenerate triangles.
	type tri struct {
		v      [3]int
		normal geom.Vec3
		area   float64
	}
	var tris []tri
	for t := 0; t < m.TriangleCount(); t++ {
		a := remap[m.Indices[t*3]]
		b := remap[m.Indices[t*3+1]]
		c := remap[m.Indices[t*3+2]]
		if a == b || b == c || a == c {
			continue
		}
		cr := points[b].Sub(points[a]).Cross(points[c].Sub(points[a]))
		area := cr.Length() / 2
		if area == 0 {
			continue
		}
		tris = append(tris, tri{v: [3]int{a, b, c}, normal: cr.Normalize(), area: area})
	}
	if len(tris) == 0 {
		return topo
	}

	// Map each undirected edge to the triangles using it.
	type edgeKey [2]int
	mk := func(a, b int) edgeKey {
		if a > b {
			a, b = b, a
		}
		return edgeKey{a, b}
	}
	edgeTris := make(map[edgeKey][]int)
	for ti, t := range tris {
		for j := 0; j < 3; j++ {
			k := mk(t.v[j], t.v[(j+1)%3])
			edgeTris[k] = append(edgeTris[k], ti)
		}
	}
	keys := make([]edgeKey, 0, len(edgeTris))
	for k := range edgeTris {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	faceSet := newUnionFind(len(tris))
	shellSet := newUnionFind(len(tris))
	cosLimit := math.Cos(FaceAngle * math.Pi / 180)
	for _, k := range keys {
		ts := edgeTris[k]
		for i := 1; i < len(ts); i++ {
			shellSet.union(ts[0], ts[i])
		}
		if len(ts) == 2 && tris[ts[0]].normal.Dot(tris[ts[1]].normal) >= cosLimit {
			faceSet.union(ts[0], ts[1])
		}
	}

	// Number faces by their lowest triangle index.
	faceOf := make([]int, len(tris))
	faceIndex := make(map[int]int)
	for ti := range tris {
		root := faceSet.find(ti)
		fi, ok := faceIndex[root]
		if !ok {
			fi = len(topo.Faces)
			faceIndex[root] = fi
			topo.Faces = append(topo.Faces, Face{Index: fi})
		}
		faceOf[ti] = fi
		f := &topo.Faces[fi]
		f.Triangles = append(f.Triangles, ti)
		f.Area += tris[ti].area
		f.Normal = f.Normal.Add(tris[ti].normal.Scale(tris[ti].area))
	}
	for i := range topo.Faces {
		topo.Faces[i].Normal = topo.Faces[i].Normal.Normalize()
	}

	// Shells group faces by connectivity.
	shellIndex := make(map[int]int)
	seen := make(map[[2]int]bool)
	for ti := range tris {
		root := shellSet.find(ti)
		si, ok := shellIndex[root]
		if !ok {
			si = len(topo.Shells)
			shellIndex[root] = si
			topo.Shells = append(topo.Shells, Shell{Index: si})
		}
		fi := faceOf[ti]
		if !seen[[2]int{si, fi}] {
			seen[[2]int{si, fi}] = true
			topo.Shells[si].Faces = append(topo.Shells[si].Faces, fi)
		}
	}

	// Edges are runs of mesh edges between the same pair of faces.
	type pair [2]int
	edgeIndex := make(map[pair]int)
	for _, k := range keys {
		ts := edgeTris[k]
		var p pair
		switch {
		case len(ts) == 1:
			p = pair{faceOf[ts[0]], -1}
		case len(ts) == 2 && faceOf[ts[0]] != faceOf[ts[1]]:
			a, b := faceOf[ts[0]], faceOf[ts[1]]
			if a > b {
				a, b = b, a
			}
			p = pair{a, b}
		default:
			continue
		}
		ei, ok := edgeIndex[p]
		if !ok {
			ei = len(topo.Edges)
			edgeIndex[p] = ei
			topo.Edges = append(topo.Edges, Edge{Faces: p})
		}
		seg := [2]geom.Vec3{points[k[0]], points[k[1]]}
		e := &topo.Edges[ei]
		e.Segments = append(e.Segments, seg)
		e.Length += seg[1].Sub(seg[0]).Length()
	}
	sort.SliceStable(topo.Edges, func(i, j int) bool {
		a, b := topo.Edges[i].Faces, topo.Edges[j].Faces
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	for i := range topo.Edges {
		topo.Edges[i].Index = i
	}
	return topo
}

// unionFind is a disjoint-set forest with path halving.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union keeps the smaller index as root so numbering follows triangle order.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
