// Package sqlite is the local-only prompt store: a single SQLite file on
// the user's machine, with a change feed that works across processes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// debounce coalesces the write bursts a single marker update produces
const debounce = 50 * time.Millisecond

// LocalStore implements gallery.RemoteStore and gallery.Importer on SQLite.
// Every write also rewrites a marker file next to the database; Subscribe
// watches that file so other processes on the same database see changes.
type LocalStore struct {
	db     *sql.DB
	path   string
	marker string
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex // serializes writers within this process
}

var (
	_ gallery.RemoteStore = (*LocalStore)(nil)
	_ gallery.Importer    = (*LocalStore)(nil)
)

// Open opens or creates the database at path
func Open(path string) (*LocalStore, error) {
	if path == "" {
		path = "gallery.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps writes ordered and avoids SQLITE_BUSY inside the process
	db.SetMaxOpenConns(1)

	stmts := []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			categories TEXT NOT NULL DEFAULT '[]',
			reference_code TEXT,
			image_source TEXT,
			image_url TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS prompts_created_at_idx ON prompts (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &LocalStore{
		db:     db,
		path:   abs,
		marker: abs + ".changes",
		logger: log.With().Str("component", "local_store").Str("path", abs).Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Path returns the absolute database path
func (s *LocalStore) Path() string {
	return s.path
}

// Close closes the database
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Select returns every record, newest first
func (s *LocalStore) Select(ctx context.Context) ([]domain.Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, body, categories, reference_code, image_source, image_url, created_at, updated_at
		FROM prompts ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, domain.NewBackendError("select", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Prompt, 0)
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, domain.NewBackendError("select", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewBackendError("select", err)
	}
	return out, nil
}

// Insert stores a new record with a fresh id and timestamps
func (s *LocalStore) Insert(ctx context.Context, fields domain.PromptFields) (*domain.Prompt, error) {
	now := s.now()
	p := domain.Prompt{
		ID:            uuid.New(),
		Body:          fields.Body,
		Categories:    nonNil(fields.Categories),
		ReferenceCode: fields.ReferenceCode,
		Image:         fields.Image,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	err := insertPrompt(ctx, s.db, p)
	s.mu.Unlock()
	if err != nil {
		return nil, domain.NewBackendError("insert", err)
	}

	s.touch(domain.ChangeInsert, p.ID)
	return &p, nil
}

// Update replaces the mutable fields of record id
func (s *LocalStore) Update(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (*domain.Prompt, error) {
	s.mu.Lock()
	p, err := s.update(ctx, id, fields)
	s.mu.Unlock()
	if err != nil {
		return nil, domain.NewBackendError("update", err)
	}

	s.touch(domain.ChangeUpdate, id)
	return &p, nil
}

func (s *LocalStore) update(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (domain.Prompt, error) {
	cats, err := json.Marshal(nonNil(fields.Categories))
	if err != nil {
		return domain.Prompt{}, err
	}
	source, url := imageColumns(fields.Image)

	res, err := s.db.ExecContext(ctx, `UPDATE prompts
		SET body = ?, categories = ?, reference_code = ?, image_source = ?, image_url = ?, updated_at = ?
		WHERE id = ?`,
		fields.Body, string(cats), fields.ReferenceCode, source, url, s.now().UnixNano(), id.String())
	if err != nil {
		return domain.Prompt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Prompt{}, domain.ErrPromptNotFound
	}

	return scanPrompt(s.db.QueryRowContext(ctx, `SELECT id, body, categories, reference_code, image_source, image_url, created_at, updated_at
		FROM prompts WHERE id = ?`, id.String()))
}

// Delete removes record id. Deleting a missing id is not an error.
func (s *LocalStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id.String())
	s.mu.Unlock()
	if err != nil {
		return domain.NewBackendError("delete", err)
	}

	s.touch(domain.ChangeDelete, id)
	return nil
}

// ReplaceAll swaps the whole working set in one transaction
func (s *LocalStore) ReplaceAll(ctx context.Context, prompts []domain.Prompt) error {
	s.mu.Lock()
	err := s.replaceAll(ctx, prompts)
	s.mu.Unlock()
	if err != nil {
		return domain.NewBackendError("replace_all", err)
	}

	s.touch(domain.ChangeUpdate, uuid.Nil)
	return nil
}

func (s *LocalStore) replaceAll(ctx context.Context, prompts []domain.Prompt) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prompts`); err != nil {
		return err
	}
	for _, p := range prompts {
		p.Categories = nonNil(p.Categories)
		if err := insertPrompt(ctx, tx, p); err != nil {
			return fmt.Errorf("insert %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Subscribe watches the marker file and calls onChange for every change
// made through any LocalStore on this database, including this one.
func (s *LocalStore) Subscribe(ctx context.Context, onChange func(domain.ChangeEvent)) (gallery.Subscription, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, domain.NewBackendError("subscribe", err)
	}
	if err := watcher.Add(filepath.Dir(s.marker)); err != nil {
		_ = watcher.Close()
		return nil, domain.NewBackendError("subscribe", err)
	}

	sub := &watchSubscription{
		watcher: watcher,
		done:    make(chan struct{}),
	}
	sub.stopped.Add(1)
	go sub.run(s, onChange)
	s.logger.Debug().Msg("Watching for local changes")
	return sub, nil
}

// touch records the last change in the marker file
func (s *LocalStore) touch(t domain.ChangeType, id uuid.UUID) {
	ev := domain.ChangeEvent{Table: domain.PromptTable, Type: t, ID: id, Timestamp: s.now()}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := os.WriteFile(s.marker, data, 0o600); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write change marker")
	}
}

// readMarker returns the last recorded change. An unreadable marker still
// counts as a change of unknown kind.
func (s *LocalStore) readMarker() domain.ChangeEvent {
	ev := domain.ChangeEvent{Table: domain.PromptTable, Type: domain.ChangeUpdate, Timestamp: s.now()}
	data, err := os.ReadFile(s.marker)
	if err != nil || len(data) == 0 {
		return ev
	}
	var decoded domain.ChangeEvent
	if err := json.Unmarshal(data, &decoded); err != nil || decoded.Type == "" {
		return ev
	}
	return decoded
}

type watchSubscription struct {
	watcher   *fsnotify.Watcher
	done      chan struct{}
	stopped   sync.WaitGroup
	closeOnce sync.Once
}

func (w *watchSubscription) run(s *LocalStore, onChange func(domain.ChangeEvent)) {
	defer w.stopped.Done()

	var pending <-chan time.Time
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.marker {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("Change watcher error")
		case <-pending:
			pending = nil
			onChange(s.readMarker())
		}
	}
}

// Close stops the watcher and waits for the delivery goroutine
func (w *watchSubscription) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.stopped.Wait()
	})
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPrompt(ctx context.Context, db execer, p domain.Prompt) error {
	cats, err := json.Marshal(p.Categories)
	if err != nil {
		return err
	}
	source, url := imageColumns(p.Image)
	_, err = db.ExecContext(ctx, `INSERT INTO prompts
		(id, body, categories, reference_code, image_source, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Body, string(cats), p.ReferenceCode, source, url,
		p.CreatedAt.UTC().UnixNano(), p.UpdatedAt.UTC().UnixNano())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row scanner) (domain.Prompt, error) {
	var (
		p                  domain.Prompt
		id, cats           string
		ref, source, url   sql.NullString
		createdAt, updated int64
	)
	if err := row.Scan(&id, &p.Body, &cats, &ref, &source, &url, &createdAt, &updated); err != nil {
		return domain.Prompt{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("bad id %q: %w", id, err)
	}
	p.ID = parsed
	if err := json.Unmarshal([]byte(cats), &p.Categories); err != nil {
		return domain.Prompt{}, fmt.Errorf("decode categories for %s: %w", id, err)
	}
	p.Categories = nonNil(p.Categories)
	if ref.Valid {
		v := ref.String
		p.ReferenceCode = &v
	}
	if url.Valid && url.String != "" {
		src := domain.ImageSourceExternal
		if source.Valid {
			src = domain.ImageSource(source.String)
		}
		p.Image = &domain.ImageRef{Source: src, URL: url.String}
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return p, nil
}

func imageColumns(img *domain.ImageRef) (source, url any) {
	if img == nil {
		return nil, nil
	}
	return string(img.Source), img.URL
}

func nonNil(c []string) []string {
	if c == nil {
		return []string{}
	}
	return c
}
