package tree

import (
	"errors"
	"testing"

	"github.com/lherron/aiomigrate/internal/domain"
)

func rec(id int64, name string, parent int64) domain.ContainerRecord {
	r := domain.ContainerRecord{ID: id, Name: name}
	if parent != 0 {
		r.ParentID = domain.Int64Ptr(parent)
	}
	return r
}

func TestBuildComputesPaths(t *testing.T) {
	tr, err := Build(domain.ContainerKindGroup, []domain.ContainerRecord{
		rec(3, "Prod", 2),
		rec(1, "Root", 0),
		rec(2, "Linux", 1),
		rec(4, "Windows", 1),
		rec(5, "Other", 0),
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if tr.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", tr.Len())
	}
	node, err := tr.FindByPath(domain.Path{"Root", "Linux", "Prod"})
	if err != nil {
		t.Fatalf("FindByPath() error: %v", err)
	}
	if node.ID() != 3 {
		t.Errorf("FindByPath() id = %d, want 3", node.ID())
	}
	if node.Parent == nil || node.Parent.ID() != 2 {
		t.Errorf("parent link not set")
	}
	if node.Record.Kind != domain.ContainerKindGroup {
		t.Errorf("record kind = %q, want group", node.Record.Kind)
	}
	if len(tr.Roots) != 2 || tr.Roots[0].Name() != "Other" || tr.Roots[1].Name() != "Root" {
		t.Errorf("roots not sorted by name: %v", tr.Paths())
	}
}

func TestFindByPathIsCaseSensitive(t *testing.T) {
	tr, err := Build(domain.ContainerKindFolder, []domain.ContainerRecord{rec(1, "Root", 0)})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	_, err = tr.FindByPath(domain.Path{"root"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("FindByPath(root) error = %v, want ErrNotFound", err)
	}
	if _, err := tr.FindByPath(nil); err == nil {
		t.Fatal("FindByPath(nil) should fail")
	}
}

func TestBuildRejectsCycles(t *testing.T) {
	tests := []struct {
		name    string
		records []domain.ContainerRecord
	}{
		{
			name:    "self parent",
			records: []domain.ContainerRecord{rec(1, "A", 1)},
		},
		{
			name:    "two node loop",
			records: []domain.ContainerRecord{rec(1, "A", 2), rec(2, "B", 1)},
		},
		{
			name: "loop beside a valid root",
			records: []domain.ContainerRecord{
				rec(1, "Root", 0),
				rec(2, "A", 3),
				rec(3, "B", 4),
				rec(4, "C", 2),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(domain.ContainerKindGroup, tt.records)
			if !errors.Is(err, domain.ErrCycleDetected) {
				t.Fatalf("Build() error = %v, want ErrCycleDetected", err)
			}
			if !domain.IsStructural(err) {
				t.Errorf("cycle should be structural")
			}
		})
	}
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		records []domain.ContainerRecord
		check   func(error) bool
	}{
		{
			name:    "orphan",
			records: []domain.ContainerRecord{rec(1, "A", 42)},
			check: func(err error) bool {
				var oe *domain.OrphanError
				return errors.As(err, &oe) && oe.ParentID == 42
			},
		},
		{
			name:    "duplicate siblings",
			records: []domain.ContainerRecord{rec(1, "Root", 0), rec(2, "Linux", 1), rec(3, "Linux", 1)},
			check: func(err error) bool {
				var de *domain.DuplicateSiblingError
				return errors.As(err, &de) && de.Path.String() == "Root/Linux"
			},
		},
		{
			name:    "duplicate ids",
			records: []domain.ContainerRecord{rec(1, "A", 0), rec(1, "B", 0)},
			check:   func(err error) bool { return errors.Is(err, domain.ErrInvalidTree) },
		},
		{
			name:    "empty name",
			records: []domain.ContainerRecord{rec(1, "", 0)},
			check:   func(err error) bool { return errors.Is(err, domain.ErrInvalidTree) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(domain.ContainerKindGroup, tt.records)
			if err == nil || !tt.check(err) {
				t.Fatalf("Build() error = %v", err)
			}
		})
	}
}

func TestSameNameUnderDifferentParents(t *testing.T) {
	tr, err := Build(domain.ContainerKindGroup, []domain.ContainerRecord{
		rec(1, "EU", 0),
		rec(2, "US", 0),
		rec(3, "Prod", 1),
		rec(4, "Prod", 2),
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	eu, _ := tr.FindByPath(domain.Path{"EU", "Prod"})
	us, _ := tr.FindByPath(domain.Path{"US", "Prod"})
	if eu.ID() != 3 || us.ID() != 4 {
		t.Errorf("got EU/Prod=%d US/Prod=%d", eu.ID(), us.ID())
	}
}

func TestTopDownOrdersParentsFirst(t *testing.T) {
	tr, err := Build(domain.ContainerKindGroup, []domain.ContainerRecord{
		rec(10, "Leaf", 9),
		rec(9, "Mid", 8),
		rec(8, "Top", 0),
		rec(7, "Alone", 0),
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	seen := map[int64]bool{}
	for _, n := range tr.TopDown() {
		if n.Parent != nil && !seen[n.Parent.ID()] {
			t.Fatalf("node %q visited before its parent", n.Path)
		}
		seen[n.ID()] = true
	}
	if len(seen) != 4 {
		t.Errorf("TopDown() visited %d nodes, want 4", len(seen))
	}
}

func TestInsert(t *testing.T) {
	tr, err := Build(domain.ContainerKindGroup, []domain.ContainerRecord{rec(1, "Root", 0)})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if _, err := tr.Insert(rec(2, "Linux", 1)); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if _, err := tr.Insert(rec(3, "Prod", 2)); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	node, err := tr.FindByPath(domain.Path{"Root", "Linux", "Prod"})
	if err != nil || node.ID() != 3 {
		t.Fatalf("FindByPath() after Insert = %v, %v", node, err)
	}

	if _, err := tr.Insert(rec(4, "Linux", 1)); err == nil {
		t.Error("Insert() of duplicate sibling should fail")
	}
	if _, err := tr.Insert(rec(5, "X", 99)); err == nil {
		t.Error("Insert() under unknown parent should fail")
	}
	if _, err := tr.Insert(rec(1, "Again", 0)); err == nil {
		t.Error("Insert() of existing id should fail")
	}
}

func TestPathsDisplayOrder(t *testing.T) {
	tr, err := Build(domain.ContainerKindFolder, []domain.ContainerRecord{
		rec(1, "B", 0),
		rec(2, "A", 0),
		rec(3, "Z", 2),
		rec(4, "Y", 2),
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	want := []string{"A", "A/Y", "A/Z", "B"}
	got := tr.Paths()
	if len(got) != len(want) {
		t.Fatalf("Paths() = %v", got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("Paths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
