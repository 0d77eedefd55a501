package mesh

import (
	"fmt"
	"strings"
)

// Algorithm2D selects the surface meshing algorithm. Values match the
// engine's numeric option codes.
type Algorithm2D int

const (
	Algorithm2DAdaptive                Algorithm2D = 1
	Algorithm2DAutomatic               Algorithm2D = 2
	Algorithm2DInitialMeshOnly         Algorithm2D = 3
	Algorithm2DDelaunay                Algorithm2D = 5
	Algorithm2DFrontalDelaunay         Algorithm2D = 6
	Algorithm2DBAMG                    Algorithm2D = 7
	Algorithm2DFrontalDelaunayQuads    Algorithm2D = 8
	Algorithm2DPackingOfParallelograms Algorithm2D = 9
	Algorithm2DQuasiStructuredQuad     Algorithm2D = 11
)

var algorithm2DNames = map[Algorithm2D]string{
	Algorithm2DAdaptive:                "Adaptive",
	Algorithm2DAutomatic:               "Automatic",
	Algorithm2DInitialMeshOnly:         "InitialMeshOnly",
	Algorithm2DDelaunay:                "Delaunay",
	Algorithm2DFrontalDelaunay:         "FrontalDelaunay",
	Algorithm2DBAMG:                    "BAMG",
	Algorithm2DFrontalDelaunayQuads:    "FrontalDelaunayQuads",
	Algorithm2DPackingOfParallelograms: "PackingOfParallelograms",
	Algorithm2DQuasiStructuredQuad:     "QuasiStructuredQuad",
}

func (a Algorithm2D) String() string { return nameOf(algorithm2DNames, a) }

// ParseAlgorithm2D converts an algorithm name to its value.
func ParseAlgorithm2D(s string) (Algorithm2D, error) {
	return parse(algorithm2DNames, "2-D algorithm", s)
}

// Algorithm3D selects the volume meshing algorithm.
type Algorithm3D int

const (
	Algorithm3DDelaunay        Algorithm3D = 1
	Algorithm3DInitialMeshOnly Algorithm3D = 3
	Algorithm3DFrontal         Algorithm3D = 4
	Algorithm3DMMG3D           Algorithm3D = 7
	Algorithm3DRTree           Algorithm3D = 9
	Algorithm3DHXT             Algorithm3D = 10
)

var algorithm3DNames = map[Algorithm3D]string{
	Algorithm3DDelaunay:        "Delaunay",
	Algorithm3DInitialMeshOnly: "InitialMeshOnly",
	Algorithm3DFrontal:         "Frontal",
	Algorithm3DMMG3D:           "MMG3D",
	Algorithm3DRTree:           "R-tree",
	Algorithm3DHXT:             "HXT",
}

func (a Algorithm3D) String() string { return nameOf(algorithm3DNames, a) }

// ParseAlgorithm3D converts an algorithm name to its value.
func ParseAlgorithm3D(s string) (Algorithm3D, error) {
	return parse(algorithm3DNames, "3-D algorithm", s)
}

// Subdivision selects how generated elements are subdivided.
type Subdivision int

const (
	SubdivisionNone Subdivision = iota
	SubdivisionAllQuadrangles
	SubdivisionAllHexahedra
	SubdivisionBarycentric
)

var subdivisionNames = map[Subdivision]string{
	SubdivisionNone:           "None",
	SubdivisionAllQuadrangles: "AllQuadrangles",
	SubdivisionAllHexahedra:   "AllHexahedra",
	SubdivisionBarycentric:    "Barycentric",
}

func (s Subdivision) String() string { return nameOf(subdivisionNames, s) }

// ParseSubdivision converts a subdivision name to its value.
func ParseSubdivision(s string) (Subdivision, error) {
	return parse(subdivisionNames, "subdivision algorithm", s)
}

// Distribution is the node spacing law along a transfinite curve.
type Distribution int

const (
	DistributionProgression Distribution = iota
	DistributionBump
	DistributionBeta
)

var distributionNames = map[Distribution]string{
	DistributionProgression: "Progression",
	DistributionBump:        "Bump",
	DistributionBeta:        "Beta",
}

func (d Distribution) String() string { return nameOf(distributionNames, d) }

// ParseDistribution converts a distribution name to its value.
func ParseDistribution(s string) (Distribution, error) {
	return parse(distributionNames, "distribution", s)
}

// Arrangement is the corner/diagonal arrangement of a transfinite surface.
type Arrangement int

const (
	ArrangementLeft Arrangement = iota
	ArrangementRight
	ArrangementAlternateLeft
	ArrangementAlternateRight
)

var arrangementNames = map[Arrangement]string{
	ArrangementLeft:           "Left",
	ArrangementRight:          "Right",
	ArrangementAlternateLeft:  "AlternateLeft",
	ArrangementAlternateRight: "AlternateRight",
}

func (a Arrangement) String() string { return nameOf(arrangementNames, a) }

// ParseArrangement converts an arrangement name to its value.
func ParseArrangement(s string) (Arrangement, error) {
	return parse(arrangementNames, "arrangement", s)
}

// Options are the generation settings forwarded by directives.
type Options struct {
	Algorithm2D    Algorithm2D         `yaml:"algorithm_2d"`
	FaceAlgorithms map[int]Algorithm2D `yaml:"face_algorithms,omitempty"`
	Algorithm3D    Algorithm3D         `yaml:"algorithm_3d"`
	Subdivision    Subdivision         `yaml:"subdivision"`
	RefinePasses   int                 `yaml:"refine_passes"`
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Algorithm2D: Algorithm2DAutomatic,
		Algorithm3D: Algorithm3DDelaunay,
		Subdivision: SubdivisionNone,
	}
}

// MarshalYAML writes the option names rather than their codes.
func (a Algorithm2D) MarshalYAML() (interface{}, error) { return a.String(), nil }
func (a Algorithm3D) MarshalYAML() (interface{}, error) { return a.String(), nil }
func (s Subdivision) MarshalYAML() (interface{}, error) { return s.String(), nil }

func nameOf[T comparable](names map[T]string, v T) string {
	if s, ok := names[v]; ok {
		return s
	}
	return "unknown"
}

// parse matches names case-insensitively.
func parse[T comparable](names map[T]string, what, s string) (T, error) {
	for v, name := range names {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("mesh: unknown %s %q", what, s)
}
