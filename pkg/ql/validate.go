package ql

import (
	"fmt"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/structured"
	"github.com/chazu/meshql/pkg/transaction"
)

// Severity indicates whether a finding would break generation or is merely
// advisory.
type Severity int

const (
	SeverityError   Severity = iota // generation would fail or be wrong
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

// Finding is a single validation result.
type Finding struct {
	Entity   entity.Entity // zero for session-level findings
	Message  string
	Severity Severity
}

func (f Finding) Error() string {
	if f.Entity.Tag == 0 {
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Entity, f.Message)
}

// ValidationResult bundles blocking errors and advisory warnings.
type ValidationResult struct {
	Errors   []Finding
	Warnings []Finding
}

// OK reports whether there are no errors.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Validate inspects the pending directives without committing them. It
// never mutates the session.
func (s *Session) Validate() ValidationResult {
	var result ValidationResult
	if s.reg == nil || s.tx == nil {
		return result
	}

	var findings []Finding
	findings = append(findings, s.validateTransfiniteFaces()...)
	findings = append(findings, s.validateTransfiniteSolids()...)
	findings = append(findings, s.validateFaceAlgorithms()...)
	findings = append(findings, s.validateGroups()...)
	findings = append(findings, s.validateSizes()...)

	for _, f := range findings {
		if f.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, f)
		} else {
			result.Errors = append(result.Errors, f)
		}
	}
	return result
}

func pendingOf[T transaction.Transaction](s *Session) []T {
	var out []T
	for _, t := range s.tx.Pending() {
		if typed, ok := t.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// validateTransfiniteFaces checks that every transfinite face is four-sided
// and that its opposite edges carry equal element counts.
func (s *Session) validateTransfiniteFaces() []Finding {
	var findings []Finding
	for _, t := range pendingOf[*transaction.SetTransfiniteFace](s) {
		shape, ok := s.reg.Shape(t.Face)
		if !ok {
			continue
		}
		face, ok := shape.(kernel.Face)
		if !ok {
			continue
		}
		pairs, err := structured.OppositeEdges(face)
		if err != nil {
			findings = append(findings, Finding{
				Entity:   t.Face,
				Message:  "face is not four-sided and will be meshed unstructured",
				Severity: SeverityWarning,
			})
			continue
		}
		// Pairs 2 and 3 mirror pairs 0 and 1.
		for _, p := range pairs[:2] {
			a, aerr := s.reg.Select(p[0])
			b, berr := s.reg.Select(p[1])
			if aerr != nil || berr != nil {
				continue
			}
			ta, aok := transaction.Lookup[*transaction.SetTransfiniteEdge](s.tx, a)
			tb, bok := transaction.Lookup[*transaction.SetTransfiniteEdge](s.tx, b)
			switch {
			case !aok || !bok:
				findings = append(findings, Finding{
					Entity:   t.Face,
					Message:  fmt.Sprintf("opposite edges %s and %s need element counts", a, b),
					Severity: SeverityError,
				})
			case ta.Elements != tb.Elements:
				findings = append(findings, Finding{
					Entity: t.Face,
					Message: fmt.Sprintf("opposite edges disagree: %s has %d elements, %s has %d",
						a, ta.Elements, b, tb.Elements),
					Severity: SeverityError,
				})
			}
		}
	}
	return findings
}

// validateTransfiniteSolids warns about transfinite solids with faces that
// are not transfinite.
func (s *Session) validateTransfiniteSolids() []Finding {
	var findings []Finding
	for _, t := range pendingOf[*transaction.SetTransfiniteSolid](s) {
		shape, ok := s.reg.Shape(t.Solid)
		if !ok {
			continue
		}
		missing := 0
		for _, face := range s.reg.SelectManyOf([]kernel.Shape{shape}, kernel.KindFace) {
			if s.tx.Get(transaction.KindSetTransfiniteFace, face) == nil {
				missing++
			}
		}
		if missing > 0 {
			findings = append(findings, Finding{
				Entity:   t.Solid,
				Message:  fmt.Sprintf("%d faces are not transfinite", missing),
				Severity: SeverityWarning,
			})
		}
	}
	return findings
}

// validateFaceAlgorithms warns about per-face algorithms that a transfinite
// directive on the same face overrides.
func (s *Session) validateFaceAlgorithms() []Finding {
	var findings []Finding
	for _, t := range pendingOf[*transaction.SetMeshAlgorithm2D](s) {
		if t.Face == nil {
			continue
		}
		if s.tx.Get(transaction.KindSetTransfiniteFace, *t.Face) != nil {
			findings = append(findings, Finding{
				Entity:   *t.Face,
				Message:  fmt.Sprintf("%s algorithm is ignored on a transfinite face", t.Algorithm),
				Severity: SeverityWarning,
			})
		}
	}
	return findings
}

// validateGroups checks physical group membership and names.
func (s *Session) validateGroups() []Finding {
	var findings []Finding
	type named struct {
		dim  int
		name string
	}
	seen := make(map[named]bool)
	for _, t := range pendingOf[*transaction.SetPhysicalGroup](s) {
		dim := -1
		for _, m := range t.Members {
			d, err := m.Dim()
			if err != nil {
				findings = append(findings, Finding{
					Entity:   m,
					Message:  fmt.Sprintf("group %q member has no dimension", t.Name),
					Severity: SeverityError,
				})
				continue
			}
			if dim >= 0 && d != dim {
				findings = append(findings, Finding{
					Message:  fmt.Sprintf("group %q mixes dimensions %d and %d", t.Name, dim, d),
					Severity: SeverityError,
				})
				break
			}
			dim = d
		}
		key := named{dim, t.Name}
		if seen[key] {
			findings = append(findings, Finding{
				Message:  fmt.Sprintf("group %q is defined more than once in dimension %d", t.Name, dim),
				Severity: SeverityWarning,
			})
		}
		seen[key] = true
	}
	return findings
}

// validateSizes warns about fixed sizes that reach no vertex.
func (s *Session) validateSizes() []Finding {
	var findings []Finding
	for _, t := range pendingOf[*transaction.SetMeshSize](s) {
		if t.Func == nil && len(t.Points) == 0 {
			findings = append(findings, Finding{
				Message:  fmt.Sprintf("mesh size %g targets no vertices", t.Size),
				Severity: SeverityWarning,
			})
		}
	}
	return findings
}
