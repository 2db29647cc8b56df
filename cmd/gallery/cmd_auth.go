package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var errLocalMode = errors.New("local mode has no accounts")

func newLoginCmd(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the gallery API",
		Long: `Sign in with an Auth0 e-mail and password. The password is read from
GALLERY_PASSWORD when set, otherwise from the first line of stdin. The session
is saved in the profile until it expires or you log out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.auth == nil {
				return errLocalMode
			}

			in := bufio.NewReader(cmd.InOrStdin())
			if email == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
				if email, err = readLine(in); err != nil {
					return err
				}
			}
			password := os.Getenv("GALLERY_PASSWORD")
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				if password, err = readLine(in); err != nil {
					return err
				}
			}

			user, err := a.auth.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			role := "viewer"
			if user.IsAdmin {
				role = "admin"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Email, role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account e-mail")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.auth == nil {
				return errLocalMode
			}
			if err := a.auth.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if a.auth == nil {
				fmt.Fprintf(out, "Local mode (%s); no sign-in needed\n", a.local.Path())
				return nil
			}
			user, err := a.auth.Session(cmd.Context())
			if err != nil {
				return err
			}
			if user == nil {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			method := "session"
			if a.usesAPIToken() {
				method = "api token"
			}
			fmt.Fprintf(out, "%s\nsubject: %s\nadmin:   %t\napi:     %s\nauth:    %s\n", user.Email, user.Subject, user.IsAdmin, a.profile.APIURL, method)
			return nil
		},
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
