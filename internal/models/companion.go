// Package models defines core data structures for companions, conversation history, and knowledge.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var companionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateCompanionID returns ErrInvalidKey unless id is 1 to 128 ASCII letters, digits, '_' or '-'.
// Companion ids name upload directories, so anything that could leave them is rejected.
func ValidateCompanionID(id string) error {
	if !companionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: companion_id %q must match %s", ErrInvalidKey, id, companionIDPattern)
	}
	return nil
}

// CompanionKey identifies one user's conversation thread with one companion under one model.
type CompanionKey struct {
	CompanionID string `json:"companion_id"`
	UserID      string `json:"user_id"`
	ModelName   string `json:"model_name"`
}

// Validate returns ErrInvalidKey if any component of the key is empty.
func (k CompanionKey) Validate() error {
	var missing []string
	if k.CompanionID == "" {
		missing = append(missing, "companion_id")
	}
	if k.UserID == "" {
		missing = append(missing, "user_id")
	}
	if k.ModelName == "" {
		missing = append(missing, "model_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidKey, strings.Join(missing, ", "))
	}
	return ValidateCompanionID(k.CompanionID)
}

// HistoryKey returns the partition key of the conversation log.
// The model name is part of the key, so switching models starts a fresh log.
func (k CompanionKey) HistoryKey() string {
	return k.CompanionID + "-" + k.ModelName + "-" + k.UserID
}

// HistoryEntry is one utterance in a conversation log.
type HistoryEntry struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // milliseconds; seed lines use 0, 1, 2, ...
}

// Texts returns the text of each entry, preserving order.
func Texts(entries []HistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

// Companion is the persona profile a conversation is held with.
type Companion struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id,omitempty"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	Seed         string    `json:"seed"`
	Sources      []Source  `json:"sources,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
