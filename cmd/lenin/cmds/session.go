package cmds

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"

	"github.com/go-go-golems/lenin/pkg/backend"
	"github.com/go-go-golems/lenin/pkg/claims"
	"github.com/go-go-golems/lenin/pkg/session"
)

var errNotAuthenticated = errors.New("not authenticated")

func ask(query string, secret bool) (string, error) {
	ui := &input.UI{
		Writer: os.Stderr,
		Reader: os.Stdin,
	}
	answer, err := ui.Ask(query, &input.Options{
		Required:  true,
		Loop:      true,
		HideOrder: true,
		Mask:      secret && isatty.IsTerminal(os.Stdin.Fd()),
	})
	if err != nil {
		return "", errors.Wrapf(err, "read %s", strings.ToLower(query))
	}
	return answer, nil
}

func newLoginCommand(f *rootFlags) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := f.newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if a.Session.Check(ctx) {
				return errors.Wrapf(session.ErrAlreadyAuthenticated, "signed in as %s", a.Session.Identity().Username)
			}
			if username == "" {
				if username, err = ask("Username", false); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = ask("Password", true); err != nil {
					return err
				}
			}

			if _, err := a.Session.SignIn(ctx, backend.LoginRequest{Username: username, Password: password}); err != nil {
				return err
			}
			id := a.Session.Identity()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s, %s)\n", id.Username, id.DisplayName, id.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

func newLogoutCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			a.SignOut()
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newRegisterCommand(f *rootFlags) *cobra.Command {
	var (
		username, password, nombre, apellido, email string
		extra                                       map[string]string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account (does not sign in)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := f.newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if username == "" {
				if username, err = ask("Username", false); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = ask("Password", true); err != nil {
					return err
				}
			}
			payload := map[string]string{}
			for k, v := range extra {
				payload[k] = v
			}
			payload["username"] = username
			payload["password"] = password
			for k, v := range map[string]string{"nombre": nombre, "apellido": apellido, "email": email} {
				if v != "" {
					payload[k] = v
				}
			}

			resp, err := a.Session.SignUp(ctx, payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(resp))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&nombre, "nombre", "", "first name")
	cmd.Flags().StringVar(&apellido, "apellido", "", "last name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringToStringVar(&extra, "field", nil, "extra registration field, key=value")
	return cmd
}

func newCheckCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Exit non-zero unless the stored session is valid (refreshing it if needed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if !a.Session.Check(cmd.Context()) {
				return errNotAuthenticated
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "authenticated")
			return nil
		},
	}
}

func newWhoamiCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if !a.Session.Check(cmd.Context()) {
				return errNotAuthenticated
			}
			id := a.Session.Identity()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "username: %s\nnombre:   %s\nrole:     %s\n", id.Username, id.DisplayName, id.Role)
			if exp, ok := claims.Expiry(a.Store.AccessToken()); ok {
				_, _ = fmt.Fprintf(out, "expires:  %s (in %s)\n", exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
			}
			return nil
		},
	}
}
