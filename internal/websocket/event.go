package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
)

// ChannelPrompts is the channel every prompt change is broadcast on
const ChannelPrompts = "prompts"

// EventType represents the type of event (created, updated, deleted)
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypePrompt EntityType = EntityType(domain.PromptTable)
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "prompts.created"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "prompts"
	Payload   interface{} `json:"payload"`   // Entity reference
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// PromptRef is the payload of prompt events. Subscribers reload the full
// set, so no record data is carried.
type PromptRef struct {
	ID uuid.UUID `json:"id"`
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PromptCreated creates a prompts.created event
func PromptCreated(id uuid.UUID) Event {
	return NewEvent(EventTypeCreated, EntityTypePrompt, PromptRef{ID: id})
}

// PromptUpdated creates a prompts.updated event
func PromptUpdated(id uuid.UUID) Event {
	return NewEvent(EventTypeUpdated, EntityTypePrompt, PromptRef{ID: id})
}

// PromptDeleted creates a prompts.deleted event
func PromptDeleted(id uuid.UUID) Event {
	return NewEvent(EventTypeDeleted, EntityTypePrompt, PromptRef{ID: id})
}

// ParseChange decodes a prompt event as received by a subscriber
func ParseChange(data []byte) (domain.ChangeEvent, error) {
	var msg struct {
		Type      string          `json:"type"`
		Entity    EntityType      `json:"entity"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if msg.Entity != EntityTypePrompt {
		return domain.ChangeEvent{}, fmt.Errorf("unexpected entity %q", msg.Entity)
	}

	var changeType domain.ChangeType
	switch EventType(strings.TrimPrefix(msg.Type, string(msg.Entity)+".")) {
	case EventTypeCreated:
		changeType = domain.ChangeInsert
	case EventTypeUpdated:
		changeType = domain.ChangeUpdate
	case EventTypeDeleted:
		changeType = domain.ChangeDelete
	default:
		return domain.ChangeEvent{}, fmt.Errorf("unexpected event type %q", msg.Type)
	}

	var ref PromptRef
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &ref); err != nil {
			return domain.ChangeEvent{}, fmt.Errorf("decode payload: %w", err)
		}
	}

	return domain.ChangeEvent{
		Table:     domain.PromptTable,
		Type:      changeType,
		ID:        ref.ID,
		Timestamp: msg.Timestamp,
	}, nil
}
