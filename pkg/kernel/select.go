package kernel

// Select decomposes shapes into their constituents of the given kind,
// deduplicated by identity in depth-first discovery order. A shape of the
// requested kind selects itself; shapes ranked below kind select nothing.
func Select(shapes []Shape, kind ShapeKind) []Shape {
	seen := make(map[ShapeID]bool)
	var out []Shape
	var walk func(s Shape)
	walk = func(s Shape) {
		if s.Kind() == kind {
			if !seen[s.ID()] {
				seen[s.ID()] = true
				out = append(out, s)
			}
			return
		}
		if s.Kind() < kind {
			return
		}
		for _, c := range s.Children() {
			walk(c)
		}
	}
	for _, s := range shapes {
		walk(s)
	}
	return out
}

// SelectBatch groups shapes by their parent-kind containers and returns,
// per container, the child-kind shapes it contains. When every shape ranks
// below parent there is no container to group by and a single batch of
// child-kind shapes is returned.
func SelectBatch(shapes []Shape, parent, child ShapeKind) [][]Shape {
	if len(shapes) == 0 {
		return nil
	}
	below := true
	for _, s := range shapes {
		if s.Kind() >= parent {
			below = false
			break
		}
	}
	if below {
		return [][]Shape{Select(shapes, child)}
	}

	var batches [][]Shape
	for _, p := range Select(shapes, parent) {
		batches = append(batches, Select([]Shape{p}, child))
	}
	return batches
}

// Edges selects the edges contained in shapes.
func Edges(shapes []Shape) []Edge {
	selected := Select(shapes, KindEdge)
	edges := make([]Edge, 0, len(selected))
	for _, s := range selected {
		if e, ok := s.(Edge); ok {
			edges = append(edges, e)
		}
	}
	return edges
}

// Faces selects the faces contained in shapes.
func Faces(shapes []Shape) []Face {
	selected := Select(shapes, KindFace)
	faces := make([]Face, 0, len(selected))
	for _, s := range selected {
		if f, ok := s.(Face); ok {
			faces = append(faces, f)
		}
	}
	return faces
}

// Vertices selects the vertices contained in shapes.
func Vertices(shapes []Shape) []Vertex {
	selected := Select(shapes, KindVertex)
	vertices := make([]Vertex, 0, len(selected))
	for _, s := range selected {
		if v, ok := s.(Vertex); ok {
			vertices = append(vertices, v)
		}
	}
	return vertices
}

// DirectedEdge is an edge traversed in loop order. Reversed is set when the
// traversal runs from the edge's end vertex to its start vertex.
type DirectedEdge struct {
	Edge     Edge
	Reversed bool
}

// Head returns the vertex the traversal leaves from.
func (d DirectedEdge) Head() Vertex {
	if d.Reversed {
		return d.Edge.End()
	}
	return d.Edge.Start()
}

// Tail returns the vertex the traversal arrives at.
func (d DirectedEdge) Tail() Vertex {
	if d.Reversed {
		return d.Edge.Start()
	}
	return d.Edge.End()
}

// SortByConnect orders edges head-to-tail, starting from the first edge in
// its own direction. When a chain cannot be continued the next unused edge
// starts a new chain.
func SortByConnect(edges []Edge) []DirectedEdge {
	remaining := make([]Edge, len(edges))
	copy(remaining, edges)

	sorted := make([]DirectedEdge, 0, len(edges))
	for len(remaining) > 0 {
		cur := DirectedEdge{Edge: remaining[0]}
		remaining = remaining[1:]
		sorted = append(sorted, cur)

		for {
			tail := cur.Tail().ID()
			next := -1
			for i, e := range remaining {
				if e.Start().ID() == tail {
					cur = DirectedEdge{Edge: e}
					next = i
					break
				}
				if e.End().ID() == tail {
					cur = DirectedEdge{Edge: e, Reversed: true}
					next = i
					break
				}
			}
			if next < 0 {
				break
			}
			remaining = append(remaining[:next], remaining[next+1:]...)
			sorted = append(sorted, cur)
		}
	}
	return sorted
}
