package domain

import (
	"time"

	"github.com/google/uuid"
)

// PromptTable is the name of the backing table and realtime channel
const PromptTable = "prompts"

// ChangeType is a row-level change kind
type ChangeType string

const (
	ChangeInsert ChangeType = "created"
	ChangeUpdate ChangeType = "updated"
	ChangeDelete ChangeType = "deleted"
)

// ChangeEvent is a realtime notification that a row changed.
// It carries no diff; receivers reload.
type ChangeEvent struct {
	Table     string     `json:"table"`
	Type      ChangeType `json:"type"`
	ID        uuid.UUID  `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
}
