package gallery

import (
	"errors"
	"testing"

	"github.com/sleuthkit/drawsync/internal/catalog"
)

// TestRegistry_PutAndGet tests the basic lifecycle
func TestRegistry_PutAndGet(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	ctrl := newTestController(t, db, cat)
	r := NewRegistry()

	if err := r.Put(ctrl); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	got, err := r.Get(ctrl.CaseID())
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != ctrl {
		t.Error("Get() returned a different controller")
	}
}

// TestRegistry_GetMissing tests the not-open error
func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("nope")
	if !errors.Is(err, ErrCaseNotOpen) {
		t.Errorf("Get() = %v, want ErrCaseNotOpen", err)
	}
}

// TestRegistry_DuplicatePut tests the double-registration guard
func TestRegistry_DuplicatePut(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	ctrl := newTestController(t, db, cat)
	r := NewRegistry()

	if err := r.Put(ctrl); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := r.Put(ctrl); err == nil {
		t.Error("second Put() succeeded, want error")
	}
	if err := r.Put(nil); err == nil {
		t.Error("Put(nil) succeeded, want error")
	}
}

// TestRegistry_RemoveClosesController tests deregistration
func TestRegistry_RemoveClosesController(t *testing.T) {
	db := newTestDB(t)
	cat := catalog.NewMemCatalog()
	defer cat.Close()

	ctrl := newTestController(t, db, cat)
	r := NewRegistry()

	if err := r.Put(ctrl); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := r.Remove(ctrl.CaseID()); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after Remove, want 0", r.Len())
	}

	if err := r.Remove(ctrl.CaseID()); !errors.Is(err, ErrCaseNotOpen) {
		t.Errorf("second Remove() = %v, want ErrCaseNotOpen", err)
	}
}

// TestRegistry_CaseIDs tests the open-case listing
func TestRegistry_CaseIDs(t *testing.T) {
	r := NewRegistry()
	if ids := r.CaseIDs(); len(ids) != 0 {
		t.Errorf("CaseIDs() = %v on empty registry, want none", ids)
	}
}
