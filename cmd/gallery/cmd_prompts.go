package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	bodyPreview = 60
	// minIDPrefix is the shortest id prefix accepted in place of a full id
	minIDPrefix = 4
)

func newListCmd(opts *options) *cobra.Command {
	var (
		tags   []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prompts, newest first",
		Long: `List prompts, newest first.

--tag may be repeated; a prompt is shown when it carries any selected tag.
"All" clears the selection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			filter, err := parseFilter(tags)
			if err != nil {
				return err
			}
			if err := a.repo.Reload(cmd.Context()); err != nil {
				return err
			}
			view := gallery.Project(a.repo.Snapshot(), filter)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			printView(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "show prompts with this category (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the view as JSON")
	return cmd
}

// imageFlags are the image options shared by add and edit
type imageFlags struct {
	url    string
	file   string
	remove bool
}

func (f *imageFlags) register(cmd *cobra.Command, allowRemove bool) {
	cmd.Flags().StringVar(&f.url, "image-url", "", "use a hosted image")
	cmd.Flags().StringVar(&f.file, "image-file", "", "upload a local image")
	if allowRemove {
		cmd.Flags().BoolVar(&f.remove, "no-image", false, "remove the current image")
	}
	cmd.MarkFlagsMutuallyExclusive("image-url", "image-file")
}

// change returns the image change, the opened file to close afterward,
// or nil for no change
func (f *imageFlags) change() (*gallery.ImageChange, io.Closer, error) {
	switch {
	case f.remove && (f.url != "" || f.file != ""):
		return nil, nil, errors.New("--no-image cannot be combined with --image-url or --image-file")
	case f.remove:
		return gallery.RemoveImage(), nil, nil
	case f.url != "":
		return gallery.UseExternalImage(f.url), nil, nil
	case f.file != "":
		file, err := os.Open(f.file)
		if err != nil {
			return nil, nil, err
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, nil, err
		}
		return gallery.UploadImage(gallery.LocalFile{
			Name:        f.file,
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(f.file))),
			Size:        info.Size(),
			Content:     file,
		}), file, nil
	}
	return nil, nil, nil
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func newAddCmd(opts *options) *cobra.Command {
	var (
		categories []string
		ref        string
		image      imageFlags
	)
	cmd := &cobra.Command{
		Use:   "add <prompt text>",
		Short: "Add a prompt",
		Example: `  gallery add "a lighthouse in fog, volumetric light" -c Photo -c Landscape --ref "--v 6"
  gallery add "paper crane" -c Illustration --image-file crane.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			change, closer, err := image.change()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			body := args[0]
			warnLongBody(cmd.ErrOrStderr(), body)
			if err := a.repo.Reload(cmd.Context()); err != nil {
				return err
			}

			created, err := a.pipeline.Create(cmd.Context(), gallery.Input{
				Body:          body,
				Categories:    categories,
				ReferenceCode: optionalString(cmd, "ref", ref),
				Image:         change,
			})
			if created == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", created.ID)
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "category (repeatable): "+strings.Join(domain.Categories, ", "))
	cmd.Flags().StringVar(&ref, "ref", "", "reference code, e.g. a style reference")
	image.register(cmd, false)
	return cmd
}

func newEditCmd(opts *options) *cobra.Command {
	var (
		body       string
		categories []string
		ref        string
		image      imageFlags
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a prompt",
		Long: `Change a prompt. Only the given flags change; the image is kept unless
--image-url, --image-file or --no-image is set. <id> may be a unique prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			change, closer, err := image.change()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.repo.Reload(cmd.Context()); err != nil {
				return err
			}
			current, err := resolve(a.repo.Snapshot(), args[0])
			if err != nil {
				return err
			}

			in := gallery.Input{
				Body:          current.Body,
				Categories:    current.Categories,
				ReferenceCode: current.ReferenceCode,
				Image:         change,
			}
			if cmd.Flags().Changed("body") {
				in.Body = body
				warnLongBody(cmd.ErrOrStderr(), body)
			}
			if cmd.Flags().Changed("category") {
				in.Categories = categories
			}
			if cmd.Flags().Changed("ref") {
				in.ReferenceCode = &ref
			}

			updated, err := a.pipeline.Update(cmd.Context(), current.ID, in)
			if updated == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", updated.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "new prompt text")
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "replace the categories (repeatable)")
	cmd.Flags().StringVar(&ref, "ref", "", "new reference code; empty clears it")
	image.register(cmd, true)
	return cmd
}

func newRmCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a prompt and its uploaded image",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.repo.Reload(cmd.Context()); err != nil {
				return err
			}
			current, err := resolve(a.repo.Snapshot(), args[0])
			if err != nil {
				return err
			}
			if err := a.pipeline.Delete(cmd.Context(), current.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", current.ID)
			return nil
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the gallery and reprint it on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(tags)
			if err != nil {
				return err
			}
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			banner := &sessionBanner{}
			if a.auth != nil {
				defer banner.Track(ctx, a.auth)()
			}

			var mu sync.Mutex
			a.repo.OnReload(func(snap gallery.Snapshot) {
				if a.auth != nil {
					// notices an expired session; the banner hears the sign-out
					_, _ = a.auth.Session(ctx)
				}
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, "\n-- %s --\n", snap.LoadedAt.Local().Format("15:04:05"))
				if line := banner.Line(); line != "" {
					fmt.Fprintln(out, line)
				}
				printView(out, gallery.Project(snap, filter))
			})

			if err := a.repo.Reload(ctx); err != nil {
				return err
			}
			if err := a.repo.Subscribe(ctx); err != nil {
				return err
			}
			log.Info().Msg("Watching for changes; press Ctrl+C to stop")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "show prompts with this category (repeatable)")
	return cmd
}

// sessionBanner keeps a one-line description of who is signed in, updated
// from auth state changes
type sessionBanner struct {
	mu   sync.Mutex
	line string
}

// Track reads the current session and follows later sign-ins and
// sign-outs. It returns the unsubscribe func.
func (b *sessionBanner) Track(ctx context.Context, auth gallery.AuthProvider) func() {
	unsubscribe := auth.OnAuthStateChange(func(ev domain.AuthEvent) {
		if ev.Type == domain.AuthSignedOut {
			b.set(nil)
			log.Warn().Msg("Session ended; run `gallery login` to make changes")
			return
		}
		b.set(ev.User)
	})
	user, err := auth.Session(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read session")
	}
	b.set(user)
	return unsubscribe
}

func (b *sessionBanner) set(user *domain.User) {
	line := "Not signed in (read-only)"
	switch {
	case user != nil && user.IsAdmin:
		line = fmt.Sprintf("Signed in as %s (admin)", user.Email)
	case user != nil:
		line = fmt.Sprintf("Signed in as %s (read-only)", user.Email)
	}
	b.mu.Lock()
	b.line = line
	b.mu.Unlock()
}

// Line returns the banner, or "" when nothing is tracked
func (b *sessionBanner) Line() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.line
}

// parseFilter builds a filter from --tag values, matching the vocabulary
// case-insensitively. Repeating a tag selects it once.
func parseFilter(tags []string) (gallery.Filter, error) {
	seen := make(map[string]bool, len(tags))
	canonical := make([]string, 0, len(tags))
	for _, t := range tags {
		c, ok := domain.CanonicalCategory(t)
		if !ok {
			return gallery.Filter{}, fmt.Errorf("unknown tag %q: choose from %s, %s",
				t, strings.Join(domain.Categories, ", "), domain.CategoryAll)
		}
		if !seen[c] {
			seen[c] = true
			canonical = append(canonical, c)
		}
	}
	return gallery.NewFilter(canonical...), nil
}

// resolve finds the prompt named by a full id or a unique id prefix
func resolve(snap gallery.Snapshot, arg string) (domain.Prompt, error) {
	if id, err := uuid.Parse(arg); err == nil {
		if p, ok := snap.Find(id); ok {
			return p, nil
		}
		return domain.Prompt{}, fmt.Errorf("%w: %s", domain.ErrPromptNotFound, arg)
	}

	prefix := strings.ToLower(strings.TrimSpace(arg))
	if len(prefix) < minIDPrefix {
		return domain.Prompt{}, fmt.Errorf("id %q is too short: give at least %d characters", arg, minIDPrefix)
	}
	var found []domain.Prompt
	for _, p := range snap.Records {
		if strings.HasPrefix(p.ID.String(), prefix) {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return domain.Prompt{}, fmt.Errorf("%w: %s", domain.ErrPromptNotFound, arg)
	case 1:
		return found[0], nil
	default:
		return domain.Prompt{}, fmt.Errorf("id prefix %q matches %d prompts", arg, len(found))
	}
}

func warnLongBody(w io.Writer, body string) {
	if domain.BodyExceedsSoftLimit(body) {
		fmt.Fprintf(w, "Warning: prompt is %d characters, over the %d character guideline\n",
			domain.BodyLength(body), domain.MaxBodyLength)
	}
}

func printView(w io.Writer, view gallery.View) {
	if msg := view.Guidance(); msg != "" {
		fmt.Fprintln(w, msg)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tCATEGORIES\tPROMPT\tIMAGE")
	for _, p := range view.Items {
		image := ""
		if p.Image != nil {
			image = p.Image.URL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.ID.String()[:8],
			p.CreatedAt.Local().Format("2006-01-02 15:04"),
			strings.Join(p.Categories, ","),
			preview(p.Body),
			image,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d of %d prompts\n", len(view.Items), view.Total)
}

func preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	r := []rune(body)
	if len(r) <= bodyPreview {
		return body
	}
	return string(r[:bodyPreview-1]) + "…"
}
