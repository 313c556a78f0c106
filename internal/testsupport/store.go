package testsupport

import (
	"context"
	"testing"

	"turnstile/internal/config"
	"turnstile/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedStaff enrolls a staff member for tests using the provided store.
func SeedStaff(t testing.TB, st *store.Store, staffID, name string, vector []float32) {
	t.Helper()

	member := &store.StaffMember{
		StaffID:    staffID,
		Name:       name,
		Department: "Assembly",
		Embedding:  vector,
		Active:     true,
	}
	if err := st.SaveStaff(context.Background(), member); err != nil {
		t.Fatalf("store.SaveStaff: %v", err)
	}
}
