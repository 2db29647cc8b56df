package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	"github.com/spf13/cobra"
)

func newExportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every prompt to a JSON backup",
		Long: `Write every prompt to a JSON backup. Without a file argument the backup is
written to prompt-gallery-backup-<date>.json; "-" writes to stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.repo.Reload(cmd.Context()); err != nil {
				return err
			}
			snap := a.repo.Snapshot()
			if !gallery.Project(snap, gallery.Filter{}).CanExport {
				return errors.New("nothing to export")
			}

			target := gallery.BackupFileName(time.Now())
			if len(args) == 1 {
				target = args[0]
			}
			if target == "-" {
				return gallery.Export(cmd.OutOrStdout(), snap)
			}

			f, err := os.Create(target)
			if err != nil {
				return err
			}
			if err := gallery.Export(f, snap); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d prompts to %s\n", len(snap.Records), target)
			return nil
		},
	}
}

func newImportCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace every prompt with the contents of a JSON backup",
		Long: `Replace every prompt with the contents of a JSON backup. Only available in
local mode. The current prompts are discarded, so --yes is required.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.isLocal() {
				return domain.ErrImportUnsupported
			}
			if !yes {
				return errors.New("import replaces every prompt; rerun with --yes to confirm")
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			n, err := a.pipeline.Import(cmd.Context(), r)
			if err != nil && n == 0 {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d prompts\n", n)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm replacing the current prompts")
	return cmd
}
