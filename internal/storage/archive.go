// Package storage persists the full conversation collection as one
// JSON payload under a well-known key. All backends share the same
// durability contract: loading never fails (absence, corruption, or an
// unreachable backend yield an empty snapshot), and save failures are
// logged and swallowed so callers can treat writes as fire-and-forget.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"solochat/internal/models"
)

// SnapshotKey is the well-known storage key for the conversation
// collection.
const SnapshotKey = "solochat:conversations"

// Snapshot is the persisted record: every conversation plus the last
// active conversation id.
type Snapshot struct {
	Conversations []*models.Conversation `json:"conversations"`
	ActiveID      string                 `json:"active_id,omitempty"`
}

// Archive reads and writes conversation snapshots.
type Archive interface {
	// Load returns the stored snapshot, or an empty one when nothing
	// usable is stored. It never returns nil.
	Load(ctx context.Context) *Snapshot
	// Save replaces the stored snapshot. Failures are logged, never
	// surfaced.
	Save(ctx context.Context, snap *Snapshot)
}

func decodeSnapshot(payload []byte) *Snapshot {
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		log.Printf("storage: discarding malformed snapshot: %v", err)
		return &Snapshot{}
	}
	return &snap
}

// SQLArchive keeps the snapshot in a single-row table, shared between
// the sqlite and mysql drivers.
type SQLArchive struct {
	db *sql.DB
}

func NewSQLArchive(db *sql.DB) *SQLArchive {
	return &SQLArchive{db: db}
}

func (a *SQLArchive) Load(ctx context.Context) *Snapshot {
	var payload string
	err := a.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE name = ?`, SnapshotKey,
	).Scan(&payload)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("storage: load snapshot: %v", err)
		}
		return &Snapshot{}
	}
	return decodeSnapshot([]byte(payload))
}

func (a *SQLArchive) Save(ctx context.Context, snap *Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("storage: encode snapshot: %v", err)
		return
	}
	now := time.Now().UTC()

	// Delete-then-insert inside one transaction is portable across both
	// drivers, unlike upsert syntax.
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("storage: save snapshot: %v", err)
		return
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE name = ?`, SnapshotKey,
	); err != nil {
		tx.Rollback()
		log.Printf("storage: save snapshot: %v", err)
		return
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (name, payload, updated_at) VALUES (?, ?, ?)`,
		SnapshotKey, string(payload), now,
	); err != nil {
		tx.Rollback()
		log.Printf("storage: save snapshot: %v", err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("storage: save snapshot: %v", err)
	}
}
