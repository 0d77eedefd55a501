package mesh

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/uuid"
)

// ElementType identifies an element shape. Values follow the usual
// mesh-format element codes.
type ElementType int

const (
	ElementLine     ElementType = 1
	ElementTriangle ElementType = 2
	ElementQuad     ElementType = 3
	ElementTet      ElementType = 4
	ElementHex      ElementType = 5
	ElementPrism    ElementType = 6
	ElementPyramid  ElementType = 7
	ElementPoint    ElementType = 15
)

func (t ElementType) String() string {
	switch t {
	case ElementLine:
		return "line"
	case ElementTriangle:
		return "triangle"
	case ElementQuad:
		return "quad"
	case ElementTet:
		return "tetrahedron"
	case ElementHex:
		return "hexahedron"
	case ElementPrism:
		return "prism"
	case ElementPyramid:
		return "pyramid"
	case ElementPoint:
		return "point"
	default:
		return "unknown"
	}
}

// NodesPerElement returns the node count of a first-order element.
func (t ElementType) NodesPerElement() int {
	switch t {
	case ElementPoint:
		return 1
	case ElementLine:
		return 2
	case ElementTriangle:
		return 3
	case ElementQuad, ElementTet:
		return 4
	case ElementPyramid:
		return 5
	case ElementPrism:
		return 6
	case ElementHex:
		return 8
	default:
		return 0
	}
}

// Node is a mesh node. Tags are 1-based and dense.
type Node struct {
	Tag int
	Pos v3.Vec
}

// Element is one mesh element, classified on the model entity it meshes.
type Element struct {
	Type   ElementType
	Entity DimTag
	Nodes  []int // node tags
}

// Group is a named physical group.
type Group struct {
	Dim  int    `yaml:"dim"`
	Tag  int    `yaml:"tag"`
	Name string `yaml:"name"`
	Tags []int  `yaml:"entities"`
}

// Mesh is the generated artifact. It is not modified after Generate returns.
type Mesh struct {
	ID             uuid.UUID
	Dim            int
	Nodes          []Node
	Elements       []Element
	Groups         []Group
	Options        Options
	BoundaryLayers []BoundaryLayer
}

// NodeCount returns the number of nodes.
func (m *Mesh) NodeCount() int {
	return len(m.Nodes)
}

// ElementCount returns the number of elements of type t.
func (m *Mesh) ElementCount(t ElementType) int {
	n := 0
	for _, e := range m.Elements {
		if e.Type == t {
			n++
		}
	}
	return n
}

// ElementsOn returns the elements classified on entity.
func (m *Mesh) ElementsOn(entity DimTag) []Element {
	var out []Element
	for _, e := range m.Elements {
		if e.Entity == entity {
			out = append(out, e)
		}
	}
	return out
}

// IsEmpty returns true if the mesh has no nodes.
func (m *Mesh) IsEmpty() bool {
	return len(m.Nodes) == 0
}

// Group returns the physical group called name.
func (m *Mesh) Group(name string) (Group, bool) {
	for _, g := range m.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// Node returns the position of the node with tag.
func (m *Mesh) Node(tag int) (v3.Vec, bool) {
	if tag < 1 || tag > len(m.Nodes) {
		return v3.Vec{}, false
	}
	return m.Nodes[tag-1].Pos, true
}
