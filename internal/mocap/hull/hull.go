// Package hull computes 3D convex hulls with the quickhull algorithm and
// reports their enclosed volume.
package hull

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerate is returned when the points cannot enclose a volume: fewer
// than four points, or all points collinear or coplanar within tolerance.
var ErrDegenerate = errors.New("degenerate point set")

// DefaultEpsilon is the coplanarity tolerance relative to the bounding box
// diagonal of the input.
const DefaultEpsilon = 1e-9

// Hull is a closed triangulated convex polyhedron. Faces are wound
// counter-clockwise when seen from outside.
type Hull struct {
	faces  [][3]int
	volume float64
}

// Volume returns the enclosed volume.
func (h *Hull) Volume() float64 { return h.volume }

// Faces returns the triangle vertex indices into the input points.
func (h *Hull) Faces() [][3]int { return append([][3]int(nil), h.faces...) }

// Vertices returns the indices of input points that lie on the hull.
func (h *Hull) Vertices() []int {
	seen := make(map[int]bool)
	var out []int
	for _, f := range h.faces {
		for _, v := range f {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

type face struct {
	v       [3]int
	normal  r3.Vec
	offset  float64
	outside []int
	dead    bool
}

func (f *face) distance(p r3.Vec) float64 {
	return r3.Dot(f.normal, p) - f.offset
}

// Volume is a convenience wrapper around New returning only the volume.
func Volume(points []r3.Vec, eps float64) (float64, error) {
	h, err := New(points, eps)
	if err != nil {
		return 0, err
	}
	return h.volume, nil
}

// New builds the convex hull of points. eps scales the bounding box diagonal
// to give the distance below which a point counts as lying on a plane.
func New(points []r3.Vec, eps float64) (*Hull, error) {
	if len(points) < 4 {
		return nil, ErrDegenerate
	}

	tol := eps * diagonal(points)
	if !(tol >= 0) {
		return nil, ErrDegenerate
	}

	simplex, ok := initialSimplex(points, tol)
	if !ok {
		return nil, ErrDegenerate
	}

	q := &quickhull{points: points, tol: tol}
	q.interior = r3.Scale(0.25, r3.Add(r3.Add(points[simplex[0]], points[simplex[1]]), r3.Add(points[simplex[2]], points[simplex[3]])))

	a, b, c, d := simplex[0], simplex[1], simplex[2], simplex[3]
	for _, tri := range [][3]int{{a, b, c}, {a, c, d}, {a, d, b}, {b, d, c}} {
		q.addFace(tri[0], tri[1], tri[2])
	}

	var pending []int
	for i := range points {
		if i == a || i == b || i == c || i == d {
			continue
		}
		pending = append(pending, i)
	}
	q.assign(pending, q.faces)
	q.expand()

	h := &Hull{}
	o := q.interior
	for _, f := range q.faces {
		if f.dead {
			continue
		}
		h.faces = append(h.faces, f.v)
		pa := r3.Sub(points[f.v[0]], o)
		pb := r3.Sub(points[f.v[1]], o)
		pc := r3.Sub(points[f.v[2]], o)
		h.volume += r3.Dot(pa, r3.Cross(pb, pc)) / 6
	}
	if h.volume <= 0 {
		return nil, ErrDegenerate
	}
	return h, nil
}

type quickhull struct {
	points   []r3.Vec
	tol      float64
	interior r3.Vec
	faces    []*face
}

// addFace appends a face oriented so that the interior point lies below it.
func (q *quickhull) addFace(a, b, c int) *face {
	pa, pb, pc := q.points[a], q.points[b], q.points[c]
	n := r3.Cross(r3.Sub(pb, pa), r3.Sub(pc, pa))
	if r3.Dot(n, r3.Sub(q.interior, pa)) > 0 {
		b, c = c, b
		n = r3.Scale(-1, n)
	}
	if l := r3.Norm(n); l > 0 {
		n = r3.Scale(1/l, n)
	}
	f := &face{v: [3]int{a, b, c}, normal: n, offset: r3.Dot(n, pa)}
	q.faces = append(q.faces, f)
	return f
}

// assign places each point in the outside set of the candidate face it lies
// farthest above. Points above no face are inside the hull and dropped.
func (q *quickhull) assign(pts []int, candidates []*face) {
	for _, i := range pts {
		var best *face
		bestDist := q.tol
		for _, f := range candidates {
			if f.dead {
				continue
			}
			if d := f.distance(q.points[i]); d > bestDist {
				best, bestDist = f, d
			}
		}
		if best != nil {
			best.outside = append(best.outside, i)
		}
	}
}

func (q *quickhull) expand() {
	for {
		var cur *face
		for _, f := range q.faces {
			if !f.dead && len(f.outside) > 0 {
				cur = f
				break
			}
		}
		if cur == nil {
			return
		}

		eye := cur.outside[0]
		eyeDist := cur.distance(q.points[eye])
		for _, i := range cur.outside[1:] {
			if d := cur.distance(q.points[i]); d > eyeDist {
				eye, eyeDist = i, d
			}
		}
		p := q.points[eye]

		edges := make(map[[2]int]bool)
		var visible []*face
		for _, f := range q.faces {
			if f.dead || f.distance(p) <= q.tol {
				continue
			}
			visible = append(visible, f)
			edges[[2]int{f.v[0], f.v[1]}] = true
			edges[[2]int{f.v[1], f.v[2]}] = true
			edges[[2]int{f.v[2], f.v[0]}] = true
		}

		var orphans []int
		for _, f := range visible {
			f.dead = true
			for _, i := range f.outside {
				if i != eye {
					orphans = append(orphans, i)
				}
			}
			f.outside = nil
		}

		for _, f := range visible {
			for k := 0; k < 3; k++ {
				u, w := f.v[k], f.v[(k+1)%3]
				if edges[[2]int{w, u}] {
					continue
				}
				q.addFace(u, w, eye)
			}
		}

		q.assign(orphans, q.faces)
		q.compact()
	}
}

func (q *quickhull) compact() {
	live := q.faces[:0]
	for _, f := range q.faces {
		if !f.dead {
			live = append(live, f)
		}
	}
	q.faces = live
}

// initialSimplex picks four points spanning a tetrahedron of non-zero volume.
func initialSimplex(points []r3.Vec, tol float64) ([4]int, bool) {
	var s [4]int

	// Extremes along each axis.
	ext := [6]int{}
	for i, p := range points {
		if p.X < points[ext[0]].X {
			ext[0] = i
		}
		if p.X > points[ext[1]].X {
			ext[1] = i
		}
		if p.Y < points[ext[2]].Y {
			ext[2] = i
		}
		if p.Y > points[ext[3]].Y {
			ext[3] = i
		}
		if p.Z < points[ext[4]].Z {
			ext[4] = i
		}
		if p.Z > points[ext[5]].Z {
			ext[5] = i
		}
	}
	best := -1.0
	for i := 0; i < 6; i++ {
		for j := i + 1; j < 6; j++ {
			if d := r3.Norm(r3.Sub(points[ext[i]], points[ext[j]])); d > best {
				best = d
				s[0], s[1] = ext[i], ext[j]
			}
		}
	}
	if best <= tol || best == 0 {
		return s, false
	}

	// Farthest from the line s0-s1.
	dir := r3.Unit(r3.Sub(points[s[1]], points[s[0]]))
	best = -1
	for i, p := range points {
		if d := r3.Norm(r3.Cross(dir, r3.Sub(p, points[s[0]]))); d > best {
			best = d
			s[2] = i
		}
	}
	if best <= tol || best == 0 {
		return s, false
	}

	// Farthest from the plane s0-s1-s2.
	n := r3.Unit(r3.Cross(r3.Sub(points[s[1]], points[s[0]]), r3.Sub(points[s[2]], points[s[0]])))
	best = -1
	for i, p := range points {
		if d := math.Abs(r3.Dot(n, r3.Sub(p, points[s[0]]))); d > best {
			best = d
			s[3] = i
		}
	}
	if best <= tol || best == 0 {
		return s, false
	}
	return s, true
}

func diagonal(points []r3.Vec) float64 {
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo.X, hi.X = math.Min(lo.X, p.X), math.Max(hi.X, p.X)
		lo.Y, hi.Y = math.Min(lo.Y, p.Y), math.Max(hi.Y, p.Y)
		lo.Z, hi.Z = math.Min(lo.Z, p.Z), math.Max(hi.Z, p.Z)
	}
	return r3.Norm(r3.Sub(hi, lo))
}
