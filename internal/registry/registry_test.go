package registry

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestGenerateIDIdempotent(t *testing.T) {
	cases := []string{"Dark Mode!!", "  weird__Spacing--here  ", "Already-lowercase-id"}
	for _, c := range cases {
		first := GenerateID(c)
		second := GenerateID(first)
		if first != second {
			t.Fatalf("GenerateID(%q) = %q, GenerateID(that) = %q", c, first, second)
		}
	}
}

func TestGenerateIDTruncatesTo50(t *testing.T) {
	long := "this is a very very very very very very very long feature title that exceeds the limit"
	id := GenerateID(long)
	if len([]rune(id)) > 50 {
		t.Fatalf("id too long: %d runes", len([]rune(id)))
	}
}

func TestAddGeneratesPlannedFeature(t *testing.T) {
	r := New(3)
	f, err := r.Add(AddInput{Title: "Dark Mode"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if f.ID != "dark-mode" {
		t.Fatalf("got id %q", f.ID)
	}
	if f.Status != StatusPlanned {
		t.Fatalf("got status %q", f.Status)
	}
}

func TestPlannedCapEnforced(t *testing.T) {
	r := New(3)
	for _, title := range []string{"A", "B", "C"} {
		if _, err := r.Add(AddInput{Title: title}); err != nil {
			t.Fatalf("add %s: %v", title, err)
		}
	}
	_, err := r.Add(AddInput{Title: "D"})
	var capErr *PlannedCapError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected PlannedCapError, got %v", err)
	}
	if capErr.Limit != 3 {
		t.Fatalf("got limit %d", capErr.Limit)
	}
	if len(capErr.PlannedTitles) != 3 {
		t.Fatalf("got titles %v", capErr.PlannedTitles)
	}
}

func TestPlannedCapOnlyCountsPlanned(t *testing.T) {
	r := New(1)
	f, err := r.Add(AddInput{Title: "A"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	status := StatusInProgress
	branch := BranchName(f.ID)
	if _, err := r.Update(f.ID, Patch{Status: &status, Branch: &branch}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := r.Add(AddInput{Title: "B"}); err != nil {
		t.Fatalf("expected room under cap, got %v", err)
	}
}

func TestSelfDependencyRejected(t *testing.T) {
	r := New(3)
	f, _ := r.Add(AddInput{Title: "A"})
	_, err := r.Update(f.ID, Patch{DependsOn: &[]string{f.ID}})
	if !errors.Is(err, ErrSelfDependency) {
		t.Fatalf("got %v", err)
	}
}

func TestCyclicDependencyRejected(t *testing.T) {
	r := New(10)
	a, _ := r.Add(AddInput{Title: "A"})
	b, _ := r.Add(AddInput{Title: "B", DependsOn: []string{a.ID}})

	_, err := r.Update(a.ID, Patch{DependsOn: &[]string{b.ID}})
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("got %v", err)
	}
}

func TestRemoveRefusesChildrenAndInProgress(t *testing.T) {
	r := New(10)
	parent, _ := r.Add(AddInput{Title: "Parent"})
	_, err := r.Add(AddInput{Title: "Child", ParentID: parent.ID})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}

	if err := r.Remove(parent.ID, false); !errors.Is(err, ErrHasChildren) {
		t.Fatalf("got %v", err)
	}

	child, err := r.Get(GenerateID("Child"))
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	status := StatusInProgress
	branch := BranchName(child.ID)
	if _, err := r.Update(child.ID, Patch{Status: &status, Branch: &branch}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := r.Remove(child.ID, false); !errors.Is(err, ErrFeatureInProgress) {
		t.Fatalf("got %v", err)
	}
	if err := r.Remove(child.ID, true); err != nil {
		t.Fatalf("forced remove: %v", err)
	}
}

func TestGetReadyRequiresDepsCompleted(t *testing.T) {
	r := New(10)
	a, _ := r.Add(AddInput{Title: "A"})
	b, _ := r.Add(AddInput{Title: "B", DependsOn: []string{a.ID}})

	ready := r.GetReady()
	if len(ready) != 1 || ready[0].ID != a.ID {
		t.Fatalf("expected only A ready, got %+v", ready)
	}

	completed := StatusCompleted
	if _, err := r.Update(a.ID, Patch{Status: &completed}); err != nil {
		t.Fatalf("update: %v", err)
	}

	ready = r.GetReady()
	found := false
	for _, f := range ready {
		if f.ID == b.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected B ready once A completed, got %+v", ready)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")

	r, err := Load(path, 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r.path = path
	if _, err := r.Add(AddInput{Title: "Dark Mode"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	r2, err := Load(path, 3)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := r2.Get("dark-mode"); err != nil {
		t.Fatalf("expected feature to persist: %v", err)
	}
}

func TestUpdateInvalidStatusRejected(t *testing.T) {
	r := New(3)
	f, _ := r.Add(AddInput{Title: "A"})
	bad := FeatureStatus("bogus")
	_, err := r.Update(f.ID, Patch{Status: &bad})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("got %v", err)
	}
}
