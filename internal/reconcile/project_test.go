package reconcile_test

import (
	"testing"

	"github.com/docmesh/sharekit/internal/access"
	"github.com/docmesh/sharekit/internal/reconcile"
)

func TestProject_MarksStagedRows(t *testing.T) {
	s := newSession(user("U1", access.Read), user("U2", access.Edit))
	s.StageAccessChange("U1", access.Comment)
	s.StageAdd(group("G1", access.Read))

	rows := reconcile.Project(s)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	byID := make(map[access.PrincipalID]reconcile.DisplayRow)
	for _, row := range rows {
		byID[row.Ref.ID] = row
	}

	if r := byID["U1"]; r.State != reconcile.RowChanged || r.Ref.Access != access.Comment {
		t.Errorf("U1 should be a changed row at comment, got %+v", r)
	}
	if r := byID["U2"]; r.State != reconcile.RowUnchanged || r.Staged() {
		t.Errorf("U2 should be unchanged, got %+v", r)
	}
	if r := byID["G1"]; r.State != reconcile.RowAdded || !r.Staged() {
		t.Errorf("G1 should be an added row, got %+v", r)
	}
}

func TestProject_ExcludesRemovals(t *testing.T) {
	s := newSession(user("U1", access.Read), user("U2", access.Edit))
	s.StageRemove("U2")

	rows := reconcile.Project(s)
	if len(rows) != 1 || rows[0].Ref.ID != "U1" {
		t.Errorf("removed principal must not be projected, got %+v", rows)
	}
}

func TestProject_IsPure(t *testing.T) {
	s := newSession(user("U1", access.Read))
	s.StageAccessChange("U1", access.Comment)

	first := reconcile.Project(s)
	second := reconcile.Project(s)
	if len(first) != len(second) {
		t.Fatalf("projection changed between calls: %d vs %d rows", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("row %d differs between calls: %+v vs %+v", i, first[i], second[i])
		}
	}
}
