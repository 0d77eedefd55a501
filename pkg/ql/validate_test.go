package ql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/meshql/pkg/entity"
	"github.com/chazu/meshql/pkg/kernel"
	"github.com/chazu/meshql/pkg/mesh"
	"github.com/chazu/meshql/pkg/transaction"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		build    func(t *testing.T) *Session
		errors   int
		warnings int
	}{
		{
			name: "not loaded",
			build: func(t *testing.T) *Session {
				return open(t)
			},
		},
		{
			name: "automatic box",
			build: func(t *testing.T) *Session {
				return open(t).Load(box(t, v3.Vec{X: 1, Y: 1, Z: 1})).SetTransfiniteAuto(10, 1, true)
			},
		},
		{
			name: "opposite edges disagree",
			build: func(t *testing.T) *Session {
				return open(t).Load(rect(t, 2, 1)).Faces().
					SetTransfiniteEdge(EdgeSpec{Elements: []int{4, 2, 6, 2}}).
					SetTransfiniteFace(mesh.ArrangementLeft)
			},
			errors: 1,
		},
		{
			name: "edges without counts",
			build: func(t *testing.T) *Session {
				return open(t).Load(rect(t, 2, 1)).SetTransfiniteFace(mesh.ArrangementLeft)
			},
			errors: 2,
		},
		{
			name: "triangle",
			build: func(t *testing.T) *Session {
				return open(t).Load(triangle(t)).SetTransfiniteFace(mesh.ArrangementLeft)
			},
			warnings: 1,
		},
		{
			name: "solid with unstructured faces",
			build: func(t *testing.T) *Session {
				return open(t).Load(box(t, v3.Vec{X: 1, Y: 1, Z: 1})).SetTransfiniteSolid()
			},
			warnings: 1,
		},
		{
			name: "face algorithm on transfinite face",
			build: func(t *testing.T) *Session {
				return open(t).Load(rect(t, 2, 1)).Faces().
					SetTransfiniteAuto(10, 1, false).
					SetMeshAlgorithm(mesh.Algorithm2DBAMG, true)
			},
			warnings: 1,
		},
		{
			name: "duplicate group",
			build: func(t *testing.T) *Session {
				return open(t).Load(rect(t, 1, 1)).Faces().
					AddPhysicalGroup("wall").
					AddPhysicalGroup("wall")
			},
			warnings: 1,
		},
		{
			name: "mixed group",
			build: func(t *testing.T) *Session {
				return open(t).Load(rect(t, 1, 1)).AddTransaction(func(*Session) transaction.Transaction {
					return &transaction.SetPhysicalGroup{
						Name: "mixed",
						Members: []entity.Entity{
							{Type: kernel.KindFace, Tag: 1},
							{Type: kernel.KindEdge, Tag: 1},
						},
					}
				})
			},
			errors: 1,
		},
		{
			name: "group of wires",
			build: func(t *testing.T) *Session {
				return open(t).Load(rect(t, 1, 1)).Wires().AddPhysicalGroup("loop")
			},
			errors: 1,
		},
		{
			name: "size without vertices",
			build: func(t *testing.T) *Session {
				return open(t, WithLevel(kernel.KindEdge)).Load(rect(t, 1, 1)).Vertices().SetMeshSize(0.5)
			},
			warnings: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.build(t)
			require.NoError(t, s.Err())
			before := len(s.Pending())

			r := s.Validate()
			assert.Len(t, r.Errors, tt.errors, "errors: %v", r.Errors)
			assert.Len(t, r.Warnings, tt.warnings, "warnings: %v", r.Warnings)
			assert.Equal(t, tt.errors == 0, r.OK())
			assert.Len(t, s.Pending(), before, "validation does not record directives")
		})
	}
}

func TestFindingError(t *testing.T) {
	f := Finding{
		Entity:   entity.Entity{Type: kernel.KindFace, Tag: 3},
		Message:  "face is not four-sided",
		Severity: SeverityWarning,
	}
	assert.Equal(t, "[warning] face:3: face is not four-sided", f.Error())

	f.Entity = entity.Entity{}
	f.Severity = SeverityError
	assert.Equal(t, "[error] face is not four-sided", f.Error())

	assert.Equal(t, "Severity(7)", Severity(7).String())
}
