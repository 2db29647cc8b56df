// Command gallery browses and curates the prompt gallery from a terminal,
// either against the gallery API or a local SQLite file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/promptgallery/gallery-backend/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// options are the flags shared by every subcommand
type options struct {
	profilePath string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "gallery",
		Short: "Browse and curate the prompt gallery",
		Long: `gallery lists, filters and edits the prompt gallery.

In remote mode it talks to the gallery API and signs in with Auth0; reads are
public and changes need an admin account. In local mode prompts live in a
SQLite file and can be exported and imported as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr(), opts.verbose)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.profilePath, "profile", config.DefaultProfilePath(), "path to the profile file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newEditCmd(opts),
		newRmCmd(opts),
		newWatchCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

var logOnce sync.Once

// setupLogging points the global logger at w. Only the first call replaces
// the logger; the level is applied every time.
func setupLogging(w io.Writer, verbose bool) {
	logOnce.Do(func() {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
	})
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// setLevel applies a profile log level such as "info" or "debug"
func setLevel(name string) {
	if lvl, err := zerolog.ParseLevel(name); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
