package testutil

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	"github.com/promptgallery/gallery-backend/internal/websocket"
)

// MockPromptRepository is a mock implementation of domain.PromptRepository
type MockPromptRepository struct {
	Prompts map[uuid.UUID]*domain.Prompt

	ListFn   func(ctx context.Context) ([]*domain.Prompt, error)
	CreateFn func(ctx context.Context, fields domain.PromptFields) (*domain.Prompt, error)
	UpdateFn func(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (*domain.Prompt, error)
	DeleteFn func(ctx context.Context, id uuid.UUID) error

	mu  sync.Mutex
	now time.Time
}

// NewMockPromptRepository creates a new MockPromptRepository
func NewMockPromptRepository() *MockPromptRepository {
	return &MockPromptRepository{
		Prompts: make(map[uuid.UUID]*domain.Prompt),
		now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so ordering by CreatedAt is stable
func (m *MockPromptRepository) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

// List returns all prompts, newest first
func (m *MockPromptRepository) List(ctx context.Context) ([]*domain.Prompt, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Prompt, 0, len(m.Prompts))
	for _, p := range m.Prompts {
		c := p.Clone()
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// GetByID retrieves a prompt by ID
func (m *MockPromptRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Prompts[id]; ok {
		c := p.Clone()
		return &c, nil
	}
	return nil, domain.ErrPromptNotFound
}

// Create stores a new prompt
func (m *MockPromptRepository) Create(ctx context.Context, fields domain.PromptFields) (*domain.Prompt, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, fields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	p := &domain.Prompt{
		ID:            uuid.New(),
		Body:          fields.Body,
		Categories:    fields.Categories,
		ReferenceCode: fields.ReferenceCode,
		Image:         fields.Image,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	stored := p.Clone()
	m.Prompts[p.ID] = &stored
	return p, nil
}

// Update replaces the mutable fields of a prompt
func (m *MockPromptRepository) Update(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (*domain.Prompt, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, id, fields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Prompts[id]
	if !ok {
		return nil, domain.ErrPromptNotFound
	}
	p.Body = fields.Body
	p.Categories = fields.Categories
	p.ReferenceCode = fields.ReferenceCode
	p.Image = fields.Image
	p.UpdatedAt = m.tick()
	c := p.Clone()
	return &c, nil
}

// Delete removes a prompt
func (m *MockPromptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Prompts[id]; !ok {
		return domain.ErrPromptNotFound
	}
	delete(m.Prompts, id)
	return nil
}

// AddPrompt adds a prompt to the mock repository (test helper)
func (m *MockPromptRepository) AddPrompt(p *domain.Prompt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.tick()
		p.UpdatedAt = p.CreatedAt
	}
	c := p.Clone()
	m.Prompts[p.ID] = &c
}

// MockRemoteStore is an in-memory gallery.RemoteStore. Records are kept
// newest first and every call is appended to Calls.
type MockRemoteStore struct {
	Records []domain.Prompt
	Calls   []string

	// EmitOnWrite fires a change event to subscribers after each write
	EmitOnWrite bool

	SelectFn    func(ctx context.Context) ([]domain.Prompt, error)
	InsertFn    func(ctx context.Context, fields domain.PromptFields) (*domain.Prompt, error)
	UpdateFn    func(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (*domain.Prompt, error)
	DeleteFn    func(ctx context.Context, id uuid.UUID) error
	SubscribeFn func(ctx context.Context, fn func(domain.ChangeEvent)) (gallery.Subscription, error)

	mu       sync.Mutex
	handlers map[int]func(domain.ChangeEvent)
	nextSub  int
	now      time.Time
}

// NewMockRemoteStore creates a MockRemoteStore seeded with records
func NewMockRemoteStore(records ...domain.Prompt) *MockRemoteStore {
	m := &MockRemoteStore{
		handlers: make(map[int]func(domain.ChangeEvent)),
		now:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, p := range records {
		m.Records = append(m.Records, p.Clone())
	}
	return m
}

func (m *MockRemoteStore) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

// CallLog returns a copy of the recorded calls
func (m *MockRemoteStore) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// CallCount returns how many times op was called
func (m *MockRemoteStore) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == op || strings.HasPrefix(c, op+":") {
			n++
		}
	}
	return n
}

// Find returns the stored record with id
func (m *MockRemoteStore) Find(id uuid.UUID) (domain.Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Records {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return domain.Prompt{}, false
}

// Select returns every record
func (m *MockRemoteStore) Select(ctx context.Context) ([]domain.Prompt, error) {
	m.record("select")
	if m.SelectFn != nil {
		return m.SelectFn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewBackendError("select", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Prompt, len(m.Records))
	for i, p := range m.Records {
		out[i] = p.Clone()
	}
	return out, nil
}

// Insert prepends a new record
func (m *MockRemoteStore) Insert(ctx context.Context, fields domain.PromptFields) (*domain.Prompt, error) {
	m.record("insert")
	if m.InsertFn != nil {
		return m.InsertFn(ctx, fields)
	}
	m.mu.Lock()
	m.now = m.now.Add(time.Second)
	p := domain.Prompt{
		ID:            uuid.New(),
		Body:          fields.Body,
		Categories:    fields.Categories,
		ReferenceCode: fields.ReferenceCode,
		Image:         fields.Image,
		CreatedAt:     m.now,
		UpdatedAt:     m.now,
	}
	m.Records = append([]domain.Prompt{p.Clone()}, m.Records...)
	m.mu.Unlock()

	m.emitWrite(domain.ChangeInsert, p.ID)
	return &p, nil
}

// Update replaces the mutable fields of record id
func (m *MockRemoteStore) Update(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (*domain.Prompt, error) {
	m.record("update:" + id.String())
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, id, fields)
	}
	m.mu.Lock()
	var updated *domain.Prompt
	for i := range m.Records {
		if m.Records[i].ID == id {
			m.now = m.now.Add(time.Second)
			m.Records[i].Body = fields.Body
			m.Records[i].Categories = fields.Categories
			m.Records[i].ReferenceCode = fields.ReferenceCode
			m.Records[i].Image = fields.Image
			m.Records[i].UpdatedAt = m.now
			c := m.Records[i].Clone()
			updated = &c
			break
		}
	}
	m.mu.Unlock()
	if updated == nil {
		return nil, domain.NewBackendError("update", domain.ErrPromptNotFound)
	}

	m.emitWrite(domain.ChangeUpdate, id)
	return updated, nil
}

// Delete removes record id
func (m *MockRemoteStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.record("delete:" + id.String())
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	m.mu.Lock()
	for i := range m.Records {
		if m.Records[i].ID == id {
			m.Records = append(m.Records[:i], m.Records[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.emitWrite(domain.ChangeDelete, id)
	return nil
}

// Subscribe registers fn for change events until the subscription is closed
func (m *MockRemoteStore) Subscribe(ctx context.Context, fn func(domain.ChangeEvent)) (gallery.Subscription, error) {
	m.record("subscribe")
	if m.SubscribeFn != nil {
		return m.SubscribeFn(ctx, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.handlers[id] = fn
	return &MockSubscription{CloseFn: func() error {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
		return nil
	}}, nil
}

// Subscribers returns the number of open subscriptions
func (m *MockRemoteStore) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// Emit delivers ev to every open subscription
func (m *MockRemoteStore) Emit(ev domain.ChangeEvent) {
	m.mu.Lock()
	handlers := make([]func(domain.ChangeEvent), 0, len(m.handlers))
	for _, fn := range m.handlers {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

// Mutate changes the backing records as another client would, without
// emitting an event
func (m *MockRemoteStore) Mutate(fn func(records []domain.Prompt) []domain.Prompt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = fn(m.Records)
}

func (m *MockRemoteStore) emitWrite(t domain.ChangeType, id uuid.UUID) {
	if !m.EmitOnWrite {
		return
	}
	m.Emit(domain.ChangeEvent{Table: domain.PromptTable, Type: t, ID: id, Timestamp: time.Now().UTC()})
}

// MockSubscription is a gallery.Subscription backed by a close func
type MockSubscription struct {
	CloseFn func() error

	mu     sync.Mutex
	closed bool
}

// Close ends the subscription once
func (s *MockSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.CloseFn != nil {
		return s.CloseFn()
	}
	return nil
}

// Closed reports whether Close was called
func (s *MockSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockLocalStore is a MockRemoteStore that also supports gallery.Importer
type MockLocalStore struct {
	*MockRemoteStore

	ReplaceAllFn func(ctx context.Context, records []domain.Prompt) error
}

// NewMockLocalStore creates a MockLocalStore seeded with records
func NewMockLocalStore(records ...domain.Prompt) *MockLocalStore {
	return &MockLocalStore{MockRemoteStore: NewMockRemoteStore(records...)}
}

// ReplaceAll swaps the whole record set
func (m *MockLocalStore) ReplaceAll(ctx context.Context, records []domain.Prompt) error {
	m.record("replace_all")
	if m.ReplaceAllFn != nil {
		return m.ReplaceAllFn(ctx, records)
	}
	m.Mutate(func([]domain.Prompt) []domain.Prompt {
		out := make([]domain.Prompt, len(records))
		for i, p := range records {
			out[i] = p.Clone()
		}
		return out
	})
	return nil
}

// MockAssetStore is an in-memory gallery.AssetStore
type MockAssetStore struct {
	BaseURL  string
	Objects  map[string][]byte
	Uploaded []string
	Deleted  []string

	UploadFn func(ctx context.Context, file gallery.LocalFile) (string, error)
	DeleteFn func(ctx context.Context, publicURL string) error

	mu sync.Mutex
}

// NewMockAssetStore creates a new MockAssetStore
func NewMockAssetStore() *MockAssetStore {
	return &MockAssetStore{
		BaseURL: "https://assets.example.com/prompt-images",
		Objects: make(map[string][]byte),
	}
}

// Upload stores the file content under a generated public URL
func (m *MockAssetStore) Upload(ctx context.Context, file gallery.LocalFile) (string, error) {
	if m.UploadFn != nil {
		return m.UploadFn(ctx, file)
	}
	data, err := io.ReadAll(file.Content)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	url := m.BaseURL + "/" + path.Join("prompts", uuid.New().String()+strings.ToLower(filepath.Ext(file.Name)))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[url] = data
	m.Uploaded = append(m.Uploaded, url)
	return url, nil
}

// Delete removes the object at publicURL
func (m *MockAssetStore) Delete(ctx context.Context, publicURL string) error {
	m.mu.Lock()
	m.Deleted = append(m.Deleted, publicURL)
	m.mu.Unlock()
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, publicURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, publicURL)
	return nil
}

// Has reports whether an object is stored at publicURL
func (m *MockAssetStore) Has(publicURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Objects[publicURL]
	return ok
}

// Put seeds an object (test helper)
func (m *MockAssetStore) Put(publicURL string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[publicURL] = data
}

// DeletedURLs returns a copy of every URL passed to Delete
func (m *MockAssetStore) DeletedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Deleted...)
}

// MockAuthProvider is an in-memory gallery.AuthProvider
type MockAuthProvider struct {
	// Accounts maps email to password for SignIn
	Accounts map[string]string
	User     *domain.User

	SessionFn func(ctx context.Context) (*domain.User, error)

	mu        sync.Mutex
	listeners map[int]func(domain.AuthEvent)
	nextID    int
}

// NewMockAuthProvider creates a MockAuthProvider, signed in as user when non-nil
func NewMockAuthProvider(user *domain.User) *MockAuthProvider {
	return &MockAuthProvider{
		Accounts:  make(map[string]string),
		User:      user,
		listeners: make(map[int]func(domain.AuthEvent)),
	}
}

// Session returns the current user, or nil when signed out
func (m *MockAuthProvider) Session(ctx context.Context) (*domain.User, error) {
	if m.SessionFn != nil {
		return m.SessionFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.User, nil
}

// SignIn checks the password against Accounts
func (m *MockAuthProvider) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	m.mu.Lock()
	want, ok := m.Accounts[email]
	if !ok || want != password {
		m.mu.Unlock()
		return nil, &domain.AuthError{Reason: "invalid credentials"}
	}
	m.User = &domain.User{Subject: "auth0|" + email, Email: email}
	user := m.User
	m.mu.Unlock()

	m.fire(domain.AuthEvent{Type: domain.AuthSignedIn, User: user})
	return user, nil
}

// SignOut clears the session
func (m *MockAuthProvider) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.User = nil
	m.mu.Unlock()
	m.fire(domain.AuthEvent{Type: domain.AuthSignedOut})
	return nil
}

// OnAuthStateChange registers fn for sign-in and sign-out events
func (m *MockAuthProvider) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *MockAuthProvider) fire(ev domain.AuthEvent) {
	m.mu.Lock()
	fns := make([]func(domain.AuthEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// PublishedEvent is one call to MockEventPublisher.Publish
type PublishedEvent struct {
	Channel string
	Event   websocket.Event
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

// Publish records the event
func (m *MockEventPublisher) Publish(channel string, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{Channel: channel, Event: event})
}

// Events returns a copy of every published event
func (m *MockEventPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedEvent(nil), m.events...)
}

// MockImageRepository is an in-memory storage.ImageRepository
type MockImageRepository struct {
	BaseURL string
	Objects map[string][]byte

	UploadFn func(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error)
	DeleteFn func(ctx context.Context, objectPath string) error

	mu sync.Mutex
}

// NewMockImageRepository creates a new MockImageRepository
func NewMockImageRepository() *MockImageRepository {
	return &MockImageRepository{
		BaseURL: "https://cdn.example.com/prompt-images",
		Objects: make(map[string][]byte),
	}
}

// Upload stores data at objectPath
func (m *MockImageRepository) Upload(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error) {
	if m.UploadFn != nil {
		return m.UploadFn(ctx, objectPath, data, contentType, size)
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[objectPath] = buf
	return m.GenerateURL(objectPath), nil
}

// Delete removes objectPath
func (m *MockImageRepository) Delete(ctx context.Context, objectPath string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, objectPath)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, objectPath)
	return nil
}

// DeleteByURL removes the object behind a public URL
func (m *MockImageRepository) DeleteByURL(ctx context.Context, imageURL string) error {
	prefix := m.BaseURL + "/"
	if !strings.HasPrefix(imageURL, prefix) {
		return nil
	}
	return m.Delete(ctx, strings.TrimPrefix(imageURL, prefix))
}

// GenerateURL returns the public URL for objectPath
func (m *MockImageRepository) GenerateURL(objectPath string) string {
	return m.BaseURL + "/" + objectPath
}

// Keys returns the stored object paths, sorted
func (m *MockImageRepository) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.Objects))
	for k := range m.Objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MockAPITokenRepository is a mock implementation of domain.APITokenRepository
type MockAPITokenRepository struct {
	Tokens map[uuid.UUID]*domain.APIToken

	GetByHashFn func(ctx context.Context, hash string) (*domain.APIToken, error)

	mu  sync.Mutex
	now time.Time
}

// NewMockAPITokenRepository creates a new MockAPITokenRepository
func NewMockAPITokenRepository() *MockAPITokenRepository {
	return &MockAPITokenRepository{
		Tokens: make(map[uuid.UUID]*domain.APIToken),
		now:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Create stores a token and assigns its ID
func (m *MockAPITokenRepository) Create(ctx context.Context, token *domain.APIToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(time.Second)
	token.ID = uuid.New()
	token.CreatedAt = m.now
	c := *token
	m.Tokens[token.ID] = &c
	return nil
}

// ListByOwner returns the owner's active tokens, newest first
func (m *MockAPITokenRepository) ListByOwner(ctx context.Context, ownerSubject string) ([]*domain.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.APIToken, 0)
	for _, t := range m.Tokens {
		if t.OwnerSubject == ownerSubject && t.RevokedAt == nil {
			c := *t
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// GetByHash returns the active token with hash
func (m *MockAPITokenRepository) GetByHash(ctx context.Context, hash string) (*domain.APIToken, error) {
	if m.GetByHashFn != nil {
		return m.GetByHashFn(ctx, hash)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Tokens {
		if t.TokenHash == hash && t.RevokedAt == nil {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrAPITokenNotFound
}

// Revoke marks the owner's token revoked
func (m *MockAPITokenRepository) Revoke(ctx context.Context, ownerSubject string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tokens[id]
	if !ok || t.OwnerSubject != ownerSubject || t.RevokedAt != nil {
		return domain.ErrAPITokenNotFound
	}
	now := m.now
	t.RevokedAt = &now
	return nil
}

// UpdateLastUsed stamps the token's LastUsedAt
func (m *MockAPITokenRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.Tokens[id]; ok {
		now := time.Now().UTC()
		t.LastUsedAt = &now
	}
	return nil
}

// LastUsed returns a token's LastUsedAt
func (m *MockAPITokenRepository) LastUsed(id uuid.UUID) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.Tokens[id]; ok {
		return t.LastUsedAt
	}
	return nil
}
