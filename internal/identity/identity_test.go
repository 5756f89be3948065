package identity

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/infrastructure/database"
	_ "github.com/halnode/rtl-bridge/migrations" // register embedded migrations
)

// openTestStore creates a migrated temporary database and a store on it.
// The returned path can be reused to reopen the same database.
func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	return openStoreAt(t, dbPath), dbPath
}

func openStoreAt(t *testing.T, dbPath string) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return NewStore(db)
}

func TestLoad_NotFound(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestResolve_GeneratesAndPersists(t *testing.T) {
	store, dbPath := openTestStore(t)
	ctx := context.Background()

	ident, err := Resolve(ctx, store, config.BridgeConfig{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !strings.HasPrefix(ident.ID, "bridge-") {
		t.Errorf("generated ID = %q, want bridge- prefix", ident.ID)
	}
	if len(ident.ID) != len("bridge-")+shortIDLength {
		t.Errorf("generated ID length = %d, want %d", len(ident.ID), len("bridge-")+shortIDLength)
	}
	if ident.Name == "" {
		t.Error("generated identity should have a display name")
	}
	if ident.CreatedAt.IsZero() {
		t.Error("generated identity should have CreatedAt set")
	}

	// Resolving again against the same database must return the same ID.
	again, err := Resolve(ctx, store, config.BridgeConfig{})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if again.ID != ident.ID {
		t.Errorf("second Resolve() ID = %q, want %q", again.ID, ident.ID)
	}

	// Same through a fresh connection (simulated restart).
	reopened := openStoreAt(t, dbPath)
	restarted, err := Resolve(ctx, reopened, config.BridgeConfig{})
	if err != nil {
		t.Fatalf("Resolve() after reopen error = %v", err)
	}
	if restarted.ID != ident.ID {
		t.Errorf("ID after reopen = %q, want %q", restarted.ID, ident.ID)
	}
}

func TestResolve_ConfigIDWinsAndPersists(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	// First run generates an ID.
	first, err := Resolve(ctx, store, config.BridgeConfig{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Config override replaces it.
	overridden, err := Resolve(ctx, store, config.BridgeConfig{ID: "bridge-custom"})
	if err != nil {
		t.Fatalf("Resolve() with override error = %v", err)
	}
	if overridden.ID != "bridge-custom" {
		t.Errorf("overridden ID = %q, want %q", overridden.ID, "bridge-custom")
	}
	if overridden.ID == first.ID {
		t.Error("override should have replaced the generated ID")
	}

	// Override is persisted: an empty config keeps using it.
	persisted, err := Resolve(ctx, store, config.BridgeConfig{})
	if err != nil {
		t.Fatalf("Resolve() after override error = %v", err)
	}
	if persisted.ID != "bridge-custom" {
		t.Errorf("persisted ID = %q, want %q", persisted.ID, "bridge-custom")
	}
}

func TestResolve_NameUpdateKeepsID(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	first, err := Resolve(ctx, store, config.BridgeConfig{Name: "Old Name"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	renamed, err := Resolve(ctx, store, config.BridgeConfig{Name: "New Name"})
	if err != nil {
		t.Fatalf("Resolve() with new name error = %v", err)
	}

	if renamed.ID != first.ID {
		t.Errorf("rename changed ID: %q -> %q", first.ID, renamed.ID)
	}
	if renamed.Name != "New Name" {
		t.Errorf("Name = %q, want %q", renamed.Name, "New Name")
	}
}

func TestSave_Upsert(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	ident := BridgeIdentity{ID: "bridge-one", Name: "One"}
	if err := store.Save(ctx, ident); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ident.Name = "One Renamed"
	if err := store.Save(ctx, ident); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Name != "One Renamed" {
		t.Errorf("Name = %q, want %q", loaded.Name, "One Renamed")
	}
}

func TestGenerateID_Unique(t *testing.T) {
	a := generateID()
	b := generateID()

	if a == b {
		t.Errorf("generateID() produced duplicate %q", a)
	}
}
