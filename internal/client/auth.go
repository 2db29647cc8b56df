package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	"github.com/rs/zerolog"
)

// SessionStore persists the signed-in session between runs. SaveSession
// with nil clears it.
type SessionStore interface {
	LoadSession() (*domain.Session, error)
	SaveSession(s *domain.Session) error
}

// Auth0Config configures the password-grant sign-in
type Auth0Config struct {
	// Domain is the tenant host, e.g. example.eu.auth0.com. A value with
	// an http(s) scheme is used as the issuer root as-is.
	Domain   string
	ClientID string
	Audience string

	// APIURL is the gallery API, used to resolve the session's identity
	APIURL string

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Auth0Provider is a gallery.AuthProvider that signs in with the Auth0
// resource-owner password grant and asks the gallery API who the token
// belongs to.
type Auth0Provider struct {
	cfg    Auth0Config
	http   *http.Client
	store  SessionStore
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	session   *domain.Session
	loaded    bool
	listeners map[int]func(domain.AuthEvent)
	nextID    int
}

var (
	_ gallery.AuthProvider = (*Auth0Provider)(nil)
	_ TokenSource          = (*Auth0Provider)(nil)
)

// NewAuth0Provider creates an Auth0Provider. store may be nil, in which
// case the session lives only as long as the process.
func NewAuth0Provider(cfg Auth0Config, store SessionStore) *Auth0Provider {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Auth0Provider{
		cfg:       cfg,
		http:      hc,
		store:     store,
		logger:    cfg.Logger.With().Str("component", "auth_provider").Logger(),
		now:       time.Now,
		listeners: make(map[int]func(domain.AuthEvent)),
	}
}

func (p *Auth0Provider) tokenURL() string {
	root := strings.TrimRight(p.cfg.Domain, "/")
	if !strings.HasPrefix(root, "http://") && !strings.HasPrefix(root, "https://") {
		root = "https://" + root
	}
	return root + "/oauth/token"
}

// Session returns the signed-in user, or nil when nobody is signed in or
// the saved token has expired
func (p *Auth0Provider) Session(ctx context.Context) (*domain.User, error) {
	sess, expired, err := p.current()
	if err != nil {
		return nil, err
	}
	if expired {
		p.logger.Info().Msg("Saved session expired")
		if err := p.clear(); err != nil {
			return nil, err
		}
		p.fire(domain.AuthEvent{Type: domain.AuthSignedOut})
		return nil, nil
	}
	if sess == nil {
		return nil, nil
	}
	user := sess.User
	return &user, nil
}

// AccessToken returns the session's bearer token, or "" when signed out
func (p *Auth0Provider) AccessToken(ctx context.Context) (string, error) {
	sess, expired, err := p.current()
	if err != nil || sess == nil || expired {
		return "", err
	}
	return sess.AccessToken, nil
}

// current returns the cached session, loading it from the store once
func (p *Auth0Provider) current() (*domain.Session, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded && p.store != nil {
		sess, err := p.store.LoadSession()
		if err != nil {
			return nil, false, fmt.Errorf("failed to load session: %w", err)
		}
		p.session = sess
	}
	p.loaded = true
	if p.session == nil {
		return nil, false, nil
	}
	return p.session, p.session.Expired(p.now()), nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// SignIn exchanges email and password for a token and resolves the user
func (p *Auth0Provider) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	if p.cfg.Domain == "" || p.cfg.ClientID == "" {
		return nil, &domain.AuthError{Reason: "auth0 domain and client id are not configured"}
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {email},
		"password":   {password},
		"client_id":  {p.cfg.ClientID},
		"scope":      {"openid profile email"},
	}
	if p.cfg.Audience != "" {
		form.Set("audience", p.cfg.Audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, &domain.AuthError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, &domain.AuthError{Reason: fmt.Sprintf("unreadable token response (status %d)", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK || tok.AccessToken == "" {
		reason := tok.ErrorDescription
		if reason == "" {
			reason = tok.Error
		}
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return nil, &domain.AuthError{Reason: reason}
	}

	user, err := p.whoami(ctx, tok.AccessToken)
	if err != nil {
		return nil, &domain.AuthError{Reason: err.Error()}
	}

	sess := &domain.Session{User: *user, AccessToken: tok.AccessToken}
	if tok.ExpiresIn > 0 {
		sess.ExpiresAt = p.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
	}

	p.mu.Lock()
	p.session = sess
	p.loaded = true
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.SaveSession(sess); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to persist session")
		}
	}

	p.logger.Info().Str("subject", user.Subject).Bool("admin", user.IsAdmin).Msg("Signed in")
	p.fire(domain.AuthEvent{Type: domain.AuthSignedIn, User: user})
	out := *user
	return &out, nil
}

type sessionResponse struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
}

// staticToken is a TokenSource for a single known token
type staticToken string

func (t staticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

func (p *Auth0Provider) api(token string) *Client {
	return New(p.cfg.APIURL, WithHTTPClient(p.http), WithTokenSource(staticToken(token)), WithLogger(p.logger))
}

func (p *Auth0Provider) whoami(ctx context.Context, token string) (*domain.User, error) {
	var me sessionResponse
	if err := p.api(token).doJSON(ctx, "whoami", http.MethodGet, "/api/v1/auth/me", nil, &me); err != nil {
		return nil, err
	}
	return &domain.User{Subject: me.Subject, Email: me.Email, Name: me.Name, IsAdmin: me.IsAdmin}, nil
}

// SignOut forgets the session. The API is told on a best-effort basis.
func (p *Auth0Provider) SignOut(ctx context.Context) error {
	token, _ := p.AccessToken(ctx)
	if token != "" && p.cfg.APIURL != "" {
		if err := p.api(token).doJSON(ctx, "logout", http.MethodPost, "/api/v1/auth/logout", nil, nil); err != nil {
			p.logger.Debug().Err(err).Msg("Logout call failed")
		}
	}
	if err := p.clear(); err != nil {
		return &domain.AuthError{Reason: err.Error()}
	}
	p.logger.Info().Msg("Signed out")
	p.fire(domain.AuthEvent{Type: domain.AuthSignedOut})
	return nil
}

func (p *Auth0Provider) clear() error {
	p.mu.Lock()
	p.session = nil
	p.loaded = true
	p.mu.Unlock()
	if p.store != nil {
		return p.store.SaveSession(nil)
	}
	return nil
}

// OnAuthStateChange registers fn for sign-in and sign-out events
func (p *Auth0Provider) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Auth0Provider) fire(ev domain.AuthEvent) {
	p.mu.Lock()
	fns := make([]func(domain.AuthEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
