package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/metrics"
	"github.com/promptgallery/gallery-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// PromptService handles prompt business logic for the API
type PromptService struct {
	promptRepo     domain.PromptRepository
	eventPublisher websocket.EventPublisher
}

// NewPromptService creates a new PromptService
func NewPromptService(promptRepo domain.PromptRepository) *PromptService {
	return &PromptService{promptRepo: promptRepo}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *PromptService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// publishEvent publishes an event if a publisher is configured
func (s *PromptService) publishEvent(event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(websocket.ChannelPrompts, event)
	}
}

// ListPrompts returns every prompt, newest first
func (s *PromptService) ListPrompts(ctx context.Context) ([]*domain.Prompt, error) {
	return s.promptRepo.List(ctx)
}

// GetPrompt returns one prompt
func (s *PromptService) GetPrompt(ctx context.Context, id uuid.UUID) (*domain.Prompt, error) {
	return s.promptRepo.GetByID(ctx, id)
}

// CreatePrompt validates and stores a new prompt
func (s *PromptService) CreatePrompt(ctx context.Context, fields domain.PromptFields) (prompt *domain.Prompt, err error) {
	defer func() { recordMutation("create", err) }()

	fields.Normalize()
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	prompt, err = s.promptRepo.Create(ctx, fields)
	if err != nil {
		return nil, err
	}

	log.Info().Str("prompt_id", prompt.ID.String()).Strs("categories", prompt.Categories).Msg("Prompt created")
	s.publishEvent(websocket.PromptCreated(prompt.ID))
	return prompt, nil
}

// UpdatePrompt replaces the mutable fields of a prompt
func (s *PromptService) UpdatePrompt(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (prompt *domain.Prompt, err error) {
	defer func() { recordMutation("update", err) }()

	fields.Normalize()
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	prompt, err = s.promptRepo.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}

	log.Info().Str("prompt_id", id.String()).Msg("Prompt updated")
	s.publishEvent(websocket.PromptUpdated(id))
	return prompt, nil
}

// DeletePrompt removes a prompt. Its image is released by the caller.
func (s *PromptService) DeletePrompt(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { recordMutation("delete", err) }()

	if err = s.promptRepo.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Str("prompt_id", id.String()).Msg("Prompt deleted")
	s.publishEvent(websocket.PromptDeleted(id))
	return nil
}

func recordMutation(op string, err error) {
	outcome := metrics.Outcome(err)
	if errors.Is(err, domain.ErrValidation) {
		outcome = "invalid"
	}
	metrics.PromptMutations.WithLabelValues(op, outcome).Inc()
}
