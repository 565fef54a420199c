package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swipechat/network"
	"swipechat/storage"
)

func (c *controller) loginCommand() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				if err := c.promptCredentials(cmd.Context(), &email, &password); err != nil {
					return err
				}
			}
			return c.login(cmd.Context(), strings.TrimSpace(email), password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func (c *controller) promptCredentials(ctx context.Context, email, password *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(email).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("email is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(password),
		),
	).WithInput(c.in).WithOutput(c.out)

	if err := form.RunWithContext(ctx); err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	return nil
}

func (c *controller) login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}

	client, err := c.restClient(ctx, "")
	if err != nil {
		return err
	}
	result, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	session := storage.Session{
		UserID:      result.User.ID,
		Name:        result.User.Name,
		Email:       result.User.Email,
		AccessToken: string(result.Token),
	}
	if session.Email == "" {
		session.Email = email
	}

	// Opaque tokens are accepted; the expiry is only known for JWTs.
	if claims, err := network.ParseTokenClaims(session.AccessToken); err == nil {
		if expiry := claims.Expiry(); !expiry.IsZero() {
			millis := expiry.UnixMilli()
			session.ExpiresAt = &millis
		}
		if id := claims.Identity(); id != "" && id != session.UserID {
			c.logger.Warn("token identity differs from login user",
				zap.String("token_user", id),
				zap.String("login_user", session.UserID),
			)
		}
	} else {
		c.logger.Debug("access token is not a JWT", zap.Error(err))
	}

	if err := c.store.SaveSession(session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	c.logger.Info("signed in", zap.String("user_id", session.UserID))
	c.printf("%s Signed in as %s\n", Styles.Success.Render("✓"), Styles.Bold.Render(displayUser(session)))
	return nil
}

func (c *controller) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.store.ClearSession(); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			c.println("Signed out.")
			return nil
		},
	}
}

func displayUser(session storage.Session) string {
	if session.Name != "" {
		return session.Name
	}
	return session.Email
}
