package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"finance-ledger/internal/database"
	"finance-ledger/internal/oauth"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a Gmail account by pasting an authorization code",
	Long: `Prints Google's consent URL, reads the authorization code from stdin and
stores the resulting tokens for the account's user. Reconnecting an account
that already exists replaces its tokens.`,
	RunE: runConnect,
}

// authCodeClient is the part of the OAuth client connect needs
type authCodeClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.TokenSet, error)
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, db, p, _, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if p.OAuth == nil {
		return errors.New("google OAuth client is not configured (set LEDGER_GOOGLE_CLIENT_ID and LEDGER_GOOGLE_CLIENT_SECRET)")
	}

	user, err := connectMailbox(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), p.OAuth, db.Users)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nConnected %s as user %d\n", user.Email, user.ID)
	return nil
}

func connectMailbox(ctx context.Context, in io.Reader, out io.Writer, client authCodeClient, users *database.UserStore) (*database.User, error) {
	fmt.Fprintln(out, "Visit this URL in your browser and authorize access:")
	fmt.Fprintf(out, "\n%s\n\n", client.AuthCodeURL(uuid.NewString()))
	fmt.Fprint(out, "Authorization code: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return nil, errors.New("authorization code is required")
	}

	set, err := client.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	claims, err := oauth.ParseIDToken(set.IDToken)
	if err != nil {
		return nil, err
	}

	expiry := set.Expiry
	user := &database.User{
		Email:        claims.Email,
		Name:         claims.Name,
		Picture:      claims.Picture,
		AccessToken:  set.AccessToken,
		RefreshToken: set.RefreshToken,
		IDToken:      set.IDToken,
		TokenExpiry:  &expiry,
	}
	if err := users.UpsertByEmail(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}
	return user, nil
}
