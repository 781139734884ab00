package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/gigbell/internal/credential"
	"github.com/nhle/gigbell/internal/store"
	"github.com/nhle/gigbell/internal/stream"
)

var (
	loginToken string
	loginCheck bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API token in the system keyring",
	Long: `Store the marketplace API token in the system keyring so the
dashboard and tail can connect without GIGBELL_TOKEN.

The token is read from --token or prompted for. With --check, gigbell
opens the notification stream once to make sure the server accepts it.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credential.Delete(credential.TokenKey); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show who the configured token belongs to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := credential.DefaultProvider().Token()
		if errors.Is(err, credential.ErrNoToken) {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), describeIdentity(credential.Inspect(token), time.Now()))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "API token (prompted for when empty)")
	loginCmd.Flags().BoolVar(&loginCheck, "check", false, "verify the token against the notification stream")
}

func runLogin(cmd *cobra.Command, args []string) error {
	token := strings.TrimSpace(loginToken)
	if token == "" {
		err := huh.NewInput().
			Title("API token").
			EchoMode(huh.EchoModePassword).
			Value(&token).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("token is required")
				}
				return nil
			}).
			Run()
		if err != nil {
			return err
		}
		token = strings.TrimSpace(token)
	}

	id := credential.Inspect(token)
	if id.Expired(time.Now()) {
		return fmt.Errorf("token expired at %s", id.ExpiresAt.Local().Format(time.DateTime))
	}

	if loginCheck {
		if err := checkToken(cmd.Context(), token, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	if err := credential.Set(credential.TokenKey, token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token saved. %s\n", describeIdentity(id, time.Now()))
	return nil
}

// checkToken opens the stream once and closes it again.
func checkToken(ctx context.Context, token string, logOut io.Writer) error {
	st, err := store.New(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr := stream.New(stream.ConfigFrom(cfg.Stream), st,
		stream.WithLogger(log.New(logOut, "", log.LstdFlags)))
	if err := mgr.Connect(ctx, token); err != nil {
		return fmt.Errorf("server rejected token: %w", err)
	}
	mgr.Close()
	return nil
}

func describeIdentity(id credential.Identity, now time.Time) string {
	if id.Opaque {
		return "Signed in with an opaque token."
	}

	who := id.Subject
	if who == "" {
		who = "an unnamed account"
	}
	switch {
	case id.ExpiresAt.IsZero():
		return fmt.Sprintf("Signed in as %s.", who)
	case id.Expired(now):
		return fmt.Sprintf("Signed in as %s; the token expired %s.", who, id.ExpiresAt.Local().Format(time.DateTime))
	default:
		return fmt.Sprintf("Signed in as %s until %s.", who, id.ExpiresAt.Local().Format(time.DateTime))
	}
}
