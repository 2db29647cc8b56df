package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/promptgallery/gallery-backend/internal/domain"
	"gopkg.in/yaml.v3"
)

// Profile modes
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// Profile is the CLI configuration stored at DefaultProfilePath
type Profile struct {
	Mode     string        `yaml:"mode"` // remote or local
	APIURL   string        `yaml:"api_url"`
	LocalDB  string        `yaml:"local_db"`
	Auth0    Auth0Profile  `yaml:"auth0"`
	Session  *SavedSession `yaml:"session,omitempty"`
	LogLevel string        `yaml:"log_level"`

	// APIToken, when set, authenticates instead of the Auth0 session
	APIToken string `yaml:"api_token,omitempty"`
}

// Auth0Profile holds the settings for the password grant
type Auth0Profile struct {
	Domain   string `yaml:"domain"`
	ClientID string `yaml:"client_id"`
	Audience string `yaml:"audience"`
}

// SavedSession is a signed-in session persisted between CLI runs
type SavedSession struct {
	AccessToken string    `yaml:"access_token"`
	Email       string    `yaml:"email"`
	Name        string    `yaml:"name,omitempty"`
	Subject     string    `yaml:"subject"`
	Admin       bool      `yaml:"admin"`
	ExpiresAt   time.Time `yaml:"expires_at"`
}

// DefaultProfilePath returns ~/.config/prompt-gallery/config.yaml
func DefaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "prompt-gallery", "config.yaml")
}

// DefaultProfile returns a profile pointing at a local API server
func DefaultProfile() *Profile {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return &Profile{
		Mode:     ModeRemote,
		APIURL:   "http://localhost:8080",
		LocalDB:  filepath.Join(dir, "prompt-gallery", "gallery.db"),
		LogLevel: "warn",
	}
}

// LoadProfile reads the profile at path, falling back to defaults when the
// file does not exist. Environment variables override file values.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("failed to parse profile: %w", err)
		}
	}

	p.applyEnvOverrides()

	if p.Mode != ModeRemote && p.Mode != ModeLocal {
		return nil, fmt.Errorf("invalid mode %q: must be %s or %s", p.Mode, ModeRemote, ModeLocal)
	}
	return p, nil
}

// Save writes the profile. The file may hold an access token so it is
// created readable by the owner only.
func (p *Profile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

func (p *Profile) applyEnvOverrides() {
	if v := os.Getenv("GALLERY_MODE"); v != "" {
		p.Mode = v
	}
	if v := os.Getenv("GALLERY_API_URL"); v != "" {
		p.APIURL = v
	}
	if v := os.Getenv("GALLERY_DB"); v != "" {
		p.LocalDB = v
	}
	if v := os.Getenv("AUTH0_DOMAIN"); v != "" {
		p.Auth0.Domain = v
	}
	if v := os.Getenv("AUTH0_CLIENT_ID"); v != "" {
		p.Auth0.ClientID = v
	}
	if v := os.Getenv("AUTH0_AUDIENCE"); v != "" {
		p.Auth0.Audience = v
	}
	if v := os.Getenv("GALLERY_LOG_LEVEL"); v != "" {
		p.LogLevel = v
	}
	if v := os.Getenv("GALLERY_API_TOKEN"); v != "" {
		p.APIToken = v
	}
}

// ProfileSessionStore keeps the signed-in session inside the profile file
type ProfileSessionStore struct {
	Path    string
	Profile *Profile
}

// LoadSession returns the saved session, or nil when signed out
func (s *ProfileSessionStore) LoadSession() (*domain.Session, error) {
	saved := s.Profile.Session
	if saved == nil || saved.AccessToken == "" {
		return nil, nil
	}
	return &domain.Session{
		User: domain.User{
			Subject: saved.Subject,
			Email:   saved.Email,
			Name:    saved.Name,
			IsAdmin: saved.Admin,
		},
		AccessToken: saved.AccessToken,
		ExpiresAt:   saved.ExpiresAt,
	}, nil
}

// SaveSession stores sess, or clears the saved session when sess is nil
func (s *ProfileSessionStore) SaveSession(sess *domain.Session) error {
	if sess == nil {
		s.Profile.Session = nil
	} else {
		s.Profile.Session = &SavedSession{
			AccessToken: sess.AccessToken,
			Email:       sess.User.Email,
			Name:        sess.User.Name,
			Subject:     sess.User.Subject,
			Admin:       sess.User.IsAdmin,
			ExpiresAt:   sess.ExpiresAt,
		}
	}
	return s.Profile.Save(s.Path)
}
