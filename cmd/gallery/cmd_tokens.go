package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errTokenNeedsSession = errors.New("API tokens are managed from a signed-in session; unset GALLERY_API_TOKEN and run `gallery login`")

func newTokenCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens for scripts",
		Long: `Manage API tokens. A token acts as the admin who created it and can be
used instead of a signed-in session by setting GALLERY_API_TOKEN or api_token
in the profile. Tokens cannot create or revoke other tokens.`,
	}
	cmd.AddCommand(newTokenCreateCmd(opts), newTokenListCmd(opts), newTokenRevokeCmd(opts))
	return cmd
}

// openTokenApp opens the app and checks it can manage tokens
func openTokenApp(opts *options) (*app, error) {
	a, err := openApp(opts)
	if err != nil {
		return nil, err
	}
	switch {
	case a.isLocal():
		a.Close()
		return nil, errLocalMode
	case a.usesAPIToken():
		a.Close()
		return nil, errTokenNeedsSession
	}
	return a, nil
}

func newTokenCreateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create <description>",
		Short: "Issue a new API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openTokenApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.api.CreateAPIToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, created.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\nid: %s\n", created.Warning, created.ID)
			return nil
		},
	}
}

func newTokenListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your active API tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openTokenApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tokens, err := a.api.ListAPITokens(cmd.Context())
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No API tokens")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPREFIX\tDESCRIPTION\tCREATED\tLAST USED")
			for _, t := range tokens {
				used := "never"
				if t.LastUsedAt != nil {
					used = t.LastUsedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.TokenPrefix, t.Description, t.CreatedAt.Local().Format("2006-01-02 15:04"), used)
			}
			return tw.Flush()
		},
	}
}

func newTokenRevokeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid token id %q: %w", args[0], err)
			}
			a, err := openTokenApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.api.RevokeAPIToken(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", id)
			return nil
		},
	}
}
