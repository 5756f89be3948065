package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/infrastructure/database"
)

// shortIDLength is how many characters of a generated UUID end up in the
// bridge ID. Full UUIDs make every MQTT topic unreadable for no gain at
// a single-site scale.
const shortIDLength = 8

// defaultName is used when neither config nor the OS provide a usable name.
const defaultName = "RTL Bridge"

// BridgeIdentity is the bridge's stable identity.
//
// The ID seeds every MQTT topic and Home Assistant unique_id, so it must
// survive restarts: a changed ID makes Home Assistant create a second copy
// of every device. It is read once at startup and never changes for the
// lifetime of the process.
type BridgeIdentity struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Store persists the bridge identity in SQLite.
//
// The bridge_identity table holds at most one row (enforced by a CHECK
// constraint in the schema).
type Store struct {
	db *database.DB
}

// NewStore creates an identity store backed by the given database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Load reads the persisted identity.
//
// Returns:
//   - BridgeIdentity: The stored identity
//   - error: ErrNotFound if no identity has been persisted yet,
//     or a wrapped ErrStorage on database failure
func (s *Store) Load(ctx context.Context) (BridgeIdentity, error) {
	var ident BridgeIdentity
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT bridge_id, display_name, created_at FROM bridge_identity WHERE id = 1",
	).Scan(&ident.ID, &ident.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BridgeIdentity{}, ErrNotFound
	}
	if err != nil {
		return BridgeIdentity{}, fmt.Errorf("%w: loading identity: %w", ErrStorage, err)
	}

	// Parse timestamp - format is controlled by Save
	ident.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled

	return ident, nil
}

// Save writes the identity, replacing any previously stored one.
//
// Returns:
//   - error: Wrapped ErrStorage on database failure
func (s *Store) Save(ctx context.Context, ident BridgeIdentity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_identity (id, bridge_id, display_name, created_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bridge_id = excluded.bridge_id,
			display_name = excluded.display_name,
			created_at = excluded.created_at
	`,
		ident.ID,
		ident.Name,
		ident.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: saving identity: %w", ErrStorage, err)
	}
	return nil
}

// Resolve determines the bridge identity at startup.
//
// Precedence:
//  1. A non-empty bridge.id in config wins and is persisted back, so a
//     later config with an empty id keeps using it.
//  2. Otherwise the persisted identity is used.
//  3. On first run a new identity is generated ("bridge-" plus a short
//     UUID fragment) and persisted.
//
// A config bridge.name updates the stored display name without touching
// the ID.
//
// Any storage failure is fatal to the caller: running with an ephemeral
// identity would re-register every device in Home Assistant on each
// restart, which is worse than not starting.
//
// Returns:
//   - BridgeIdentity: The resolved identity
//   - error: Wrapped ErrStorage on any database failure
func Resolve(ctx context.Context, store *Store, cfg config.BridgeConfig) (BridgeIdentity, error) {
	stored, err := store.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return BridgeIdentity{}, err
	}

	if errors.Is(err, ErrNotFound) {
		ident := BridgeIdentity{
			ID:        cfg.ID,
			Name:      cfg.Name,
			CreatedAt: time.Now().UTC(),
		}
		if ident.ID == "" {
			ident.ID = generateID()
		}
		if ident.Name == "" {
			ident.Name = hostnameOrDefault()
		}
		if err := store.Save(ctx, ident); err != nil {
			return BridgeIdentity{}, err
		}
		return ident, nil
	}

	// Apply config overrides to the stored identity
	changed := false
	if cfg.ID != "" && cfg.ID != stored.ID {
		stored.ID = cfg.ID
		changed = true
	}
	if cfg.Name != "" && cfg.Name != stored.Name {
		stored.Name = cfg.Name
		changed = true
	}

	if changed {
		if err := store.Save(ctx, stored); err != nil {
			return BridgeIdentity{}, err
		}
	}

	return stored, nil
}

// generateID produces a new bridge identifier.
func generateID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "bridge-" + id[:shortIDLength]
}

// hostnameOrDefault returns the host's name for the display name,
// falling back to a generic default.
func hostnameOrDefault() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return defaultName
	}
	return name
}
