package main

import (
	"fmt"

	"github.com/promptgallery/gallery-backend/internal/client"
	"github.com/promptgallery/gallery-backend/internal/config"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	"github.com/promptgallery/gallery-backend/internal/repository/sqlite"
	"github.com/rs/zerolog/log"
)

// app is the gallery core wired for the profile's mode
type app struct {
	profile *config.Profile

	repo     *gallery.Repository
	pipeline *gallery.Pipeline

	// auth and api are nil in local mode
	auth  gallery.AuthProvider
	api   *client.Client
	local *sqlite.LocalStore
}

func openApp(opts *options) (*app, error) {
	profile, err := config.LoadProfile(opts.profilePath)
	if err != nil {
		return nil, err
	}
	if lvl := profile.LogLevel; lvl != "" && !opts.verbose {
		setLevel(lvl)
	}

	a := &app{profile: profile}
	logger := log.Logger

	switch profile.Mode {
	case config.ModeLocal:
		store, err := sqlite.Open(profile.LocalDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open local gallery: %w", err)
		}
		a.local = store
		a.repo = gallery.NewRepository(store, logger)
		a.pipeline = gallery.NewPipeline(a.repo, gallery.WithLogger(logger))
	default:
		var tokens client.TokenSource
		if profile.APIToken != "" {
			auth := client.NewAPITokenAuth(profile.APIURL, profile.APIToken, client.WithLogger(logger))
			a.auth, tokens = auth, auth
		} else {
			auth := client.NewAuth0Provider(client.Auth0Config{
				Domain:   profile.Auth0.Domain,
				ClientID: profile.Auth0.ClientID,
				Audience: profile.Auth0.Audience,
				APIURL:   profile.APIURL,
				Logger:   logger,
			}, &config.ProfileSessionStore{Path: opts.profilePath, Profile: profile})
			a.auth, tokens = auth, auth
		}

		a.api = client.New(profile.APIURL, client.WithTokenSource(tokens), client.WithLogger(logger))
		a.repo = gallery.NewRepository(client.NewPromptTable(a.api), logger)
		a.pipeline = gallery.NewPipeline(a.repo,
			gallery.WithAssetStore(client.NewAssetStore(a.api)),
			gallery.WithAuthProvider(a.auth),
			gallery.WithLogger(logger),
		)
	}
	return a, nil
}

func (a *app) isLocal() bool {
	return a.profile.Mode == config.ModeLocal
}

func (a *app) usesAPIToken() bool {
	return !a.isLocal() && a.profile.APIToken != ""
}

// Close ends the subscription, if any, and releases the local database
func (a *app) Close() error {
	err := a.repo.Unsubscribe()
	if a.local != nil {
		if cerr := a.local.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
