package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	ws "github.com/promptgallery/gallery-backend/internal/websocket"
)

const (
	promptsPath = "/api/v1/prompts"
	feedPath    = "/ws"

	minRedial = 500 * time.Millisecond
	maxRedial = 30 * time.Second
)

// PromptTable is the gallery.RemoteStore backed by the gallery API
type PromptTable struct {
	client *Client
	dialer *websocket.Dialer
}

var (
	_ gallery.RemoteStore  = (*PromptTable)(nil)
	_ gallery.Subscription = (*feed)(nil)
)

// NewPromptTable creates a PromptTable over c
func NewPromptTable(c *Client) *PromptTable {
	return &PromptTable{client: c, dialer: websocket.DefaultDialer}
}

// Select returns every prompt, newest first
func (t *PromptTable) Select(ctx context.Context) ([]domain.Prompt, error) {
	var out []domain.Prompt
	if err := t.client.doJSON(ctx, "select", http.MethodGet, promptsPath, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Prompt{}
	}
	return out, nil
}

// Insert creates a prompt
func (t *PromptTable) Insert(ctx context.Context, fields domain.PromptFields) (*domain.Prompt, error) {
	var out domain.Prompt
	if err := t.client.doJSON(ctx, "insert", http.MethodPost, promptsPath, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the fields of prompt id
func (t *PromptTable) Update(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (*domain.Prompt, error) {
	var out domain.Prompt
	if err := t.client.doJSON(ctx, "update", http.MethodPut, promptsPath+"/"+id.String(), fields, &out); err != nil {
		return nil, promptNotFound(err)
	}
	return &out, nil
}

// Delete removes prompt id
func (t *PromptTable) Delete(ctx context.Context, id uuid.UUID) error {
	return promptNotFound(t.client.doJSON(ctx, "delete", http.MethodDelete, promptsPath+"/"+id.String(), nil, nil))
}

func promptNotFound(err error) error {
	var be *domain.BackendError
	if errors.As(err, &be) && be.Status == http.StatusNotFound {
		be.Err = domain.ErrPromptNotFound
	}
	return err
}

// Subscribe opens the realtime feed. The first connection is made before
// returning; later drops are redialed with backoff until ctx ends or the
// subscription is closed. Each redial is reported as an update with a nil
// id so the subscriber reloads whatever it missed.
func (t *PromptTable) Subscribe(ctx context.Context, onChange func(domain.ChangeEvent)) (gallery.Subscription, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		var be *domain.BackendError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, domain.NewBackendError("subscribe", err)
	}

	feedCtx, cancel := context.WithCancel(ctx)
	f := &feed{
		table:    t,
		onChange: onChange,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	f.conn = conn
	go f.run(feedCtx, conn)
	return f, nil
}

func (t *PromptTable) feedURL(ctx context.Context) (string, error) {
	u, err := url.Parse(t.client.baseURL + feedPath)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if t.client.tokens != nil {
		token, err := t.client.tokens.AccessToken(ctx)
		if err != nil {
			return "", err
		}
		if token != "" {
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

func (t *PromptTable) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := t.feedURL(ctx)
	if err != nil {
		return nil, err
	}
	conn, resp, err := t.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &domain.BackendError{Op: "subscribe", Status: resp.StatusCode, Message: err.Error(), Err: err}
		}
		return nil, err
	}
	return conn, nil
}

// feed is an open realtime subscription
type feed struct {
	table    *PromptTable
	onChange func(domain.ChangeEvent)
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

// swapConn installs conn as the live connection unless the feed is closing
func (f *feed) swapConn(ctx context.Context, conn *websocket.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return false
	}
	f.conn = conn
	return true
}

func (f *feed) run(ctx context.Context, conn *websocket.Conn) {
	defer close(f.done)
	logger := f.table.client.logger

	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.conn != nil {
			f.conn.Close()
		}
	})
	defer stop()

	for {
		f.read(conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		backoff := minRedial
		for {
			logger.Warn().Dur("retry_in", backoff).Msg("Realtime feed dropped; redialing")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			next, err := f.table.dial(ctx)
			if err == nil {
				conn = next
				break
			}
			if ctx.Err() != nil {
				return
			}
			logger.Debug().Err(err).Msg("Redial failed")
			backoff *= 2
			if backoff > maxRedial {
				backoff = maxRedial
			}
		}

		if !f.swapConn(ctx, conn) {
			return
		}
		logger.Info().Msg("Realtime feed reconnected")
		f.onChange(domain.ChangeEvent{
			Table:     domain.PromptTable,
			Type:      domain.ChangeUpdate,
			Timestamp: time.Now().UTC(),
		})
	}
}

// read delivers events until the connection fails
func (f *feed) read(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := ws.ParseChange(data)
		if err != nil {
			f.table.client.logger.Debug().Err(err).Str("message", strings.TrimSpace(string(data))).Msg("Ignoring realtime message")
			continue
		}
		f.onChange(ev)
	}
}

// Close stops the feed and waits for the reader to exit. It is safe to call
// more than once.
func (f *feed) Close() error {
	f.closeOnce.Do(func() {
		f.cancel()
		f.mu.Lock()
		if f.conn != nil {
			f.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			f.conn.Close()
		}
		f.mu.Unlock()
	})
	<-f.done
	return nil
}
