// Package storage defines the persistence interfaces for conversation history and companion profiles.
package storage

import (
	"context"

	"github.com/hyperjump/companion/internal/models"
)

// HistoryStore is a durable, append-only, per-key ordered log of utterances.
type HistoryStore interface {
	// Append writes one entry stamped with the current time in milliseconds.
	Append(ctx context.Context, key models.CompanionKey, text string) error
	// ReadRecent returns up to limit of the newest entries, oldest first.
	// A key with no history yields an empty slice and no error.
	ReadRecent(ctx context.Context, key models.CompanionKey, limit int) ([]models.HistoryEntry, error)
	// SeedIfEmpty splits seed by delimiter and writes the lines with timestamps 0, 1, 2, ...
	// It does nothing when the log for key already has entries.
	SeedIfEmpty(ctx context.Context, key models.CompanionKey, seed, delimiter string) error
	Count(ctx context.Context, key models.CompanionKey) (int64, error)
	Clear(ctx context.Context, key models.CompanionKey) (int64, error)
}

// CompanionStore persists companion profiles and their knowledge source records.
type CompanionStore interface {
	SaveCompanion(ctx context.Context, c *models.Companion) error
	GetCompanion(ctx context.Context, id string) (*models.Companion, error)
	ListCompanions(ctx context.Context, offset, limit int) ([]*models.Companion, error)
	// DeleteCompanion removes the profile, its source records, and every history log of the companion.
	DeleteCompanion(ctx context.Context, id string) error
}

// Storage combines both stores behind one handle.
type Storage interface {
	HistoryStore
	CompanionStore
	Close() error
}
