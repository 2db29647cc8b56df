package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
)

// BackupFileName returns the default export file name for day
func BackupFileName(day time.Time) string {
	return "prompt-gallery-backup-" + day.UTC().Format("2006-01-02") + ".json"
}

// Export writes snap's records as an indented JSON array
func Export(w io.Writer, snap Snapshot) error {
	records := snap.Records
	if records == nil {
		records = []domain.Prompt{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// DecodeBackup reads a backup file. The top level must be a JSON array;
// records missing an id get a fresh one and every record must pass the
// same field checks as a create.
func DecodeBackup(r io.Reader) ([]domain.Prompt, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: invalid backup file: %w", domain.ErrInvalidInput, err)
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: invalid backup file: expected a JSON array", domain.ErrInvalidInput)
	}

	var records []domain.Prompt
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: invalid backup file: %w", domain.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	seen := make(map[uuid.UUID]bool, len(records))
	for i := range records {
		p := &records[i]
		fields := domain.PromptFields{
			Body:          p.Body,
			Categories:    p.Categories,
			ReferenceCode: p.ReferenceCode,
			Image:         p.Image,
		}
		fields.Normalize()
		if err := fields.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		p.Body, p.Categories, p.ReferenceCode, p.Image = fields.Body, fields.Categories, fields.ReferenceCode, fields.Image

		if p.ID == uuid.Nil || seen[p.ID] {
			p.ID = uuid.New()
		}
		seen[p.ID] = true
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = p.CreatedAt
		}
	}
	return records, nil
}

// Export writes the repository's current snapshot
func (p *Pipeline) Export(w io.Writer) error {
	return Export(w, p.repo.Snapshot())
}

// Import replaces the whole working set with the records in r. Only stores
// implementing Importer support it; others return ErrImportUnsupported.
func (p *Pipeline) Import(ctx context.Context, r io.Reader) (int, error) {
	importer, ok := p.store.(Importer)
	if !ok {
		return 0, domain.ErrImportUnsupported
	}

	records, err := DecodeBackup(r)
	if err != nil {
		return 0, err
	}
	if err := p.requireSession(ctx); err != nil {
		return 0, err
	}

	if err := importer.ReplaceAll(ctx, records); err != nil {
		return 0, backendError("import", err)
	}
	p.logger.Info().Int("count", len(records)).Msg("Imported prompts")
	return len(records), p.refresh(ctx)
}
