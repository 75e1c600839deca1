package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/omochice/taskflow-chat/internal/auth"
)

func (a *App) newLoginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(a.in)

			if email == "" {
				fmt.Fprint(a.out, "Email: ")
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read email: %w", err)
				}
				email = strings.TrimSpace(line)
			}
			if email == "" {
				return errors.New("email is required")
			}

			fmt.Fprint(a.out, "Password: ")
			password, err := a.promptPassword(reader)
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}

			resp, err := a.client("", nil).Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("failed to log in: %w", err)
			}

			s := &auth.Session{Token: resp.Token, User: resp.User, SavedAt: time.Now().UTC()}
			if err := s.Resolve(time.Now()); err != nil {
				return fmt.Errorf("failed to log in: %w", err)
			}
			if err := auth.Save(a.cfg.Session.Path, s); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Logged in as %s\n", s.User.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

// promptPassword reads without echo from a terminal and falls back to a
// plain line otherwise.
func (a *App) promptPassword(reader *bufio.Reader) (string, error) {
	if a.readPassword != nil {
		return a.readPassword()
	}
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *App) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.Remove(a.cfg.Session.Path); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}
