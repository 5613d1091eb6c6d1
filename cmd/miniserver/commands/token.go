package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/miniserver/internal/cli/output"
	"github.com/marmos91/miniserver/pkg/auth"
	"github.com/marmos91/miniserver/pkg/config"
	"github.com/marmos91/miniserver/pkg/models"
	"github.com/marmos91/miniserver/pkg/store"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage bearer tokens",
}

var (
	tokenUser  string
	tokenAgent string
	tokenTTL   time.Duration
)

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for a user",
	Long: `Issue a signed bearer token for a user and store it. Credentials are
created for the user when it has none.

auth.secret must be configured so that the running server accepts the token.

Examples:
  miniserver token issue --user alice --agent curl
  miniserver token issue --user alice --agent ci --ttl 24h`,
	Args: cobra.NoArgs,
	RunE: runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenUser, "user", "", "User name")
	tokenIssueCmd.Flags().StringVar(&tokenAgent, "agent", "", "Client agent the token is issued to")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: auth.token_ttl)")
	_ = tokenIssueCmd.MarkFlagRequired("user")
	_ = tokenIssueCmd.MarkFlagRequired("agent")

	tokenCmd.AddCommand(tokenIssueCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, cfg *config.Config, st *store.GORMStore) error {
		if cfg.Auth.Secret == "" {
			return errors.New("auth.secret is not configured; the server would reject the token")
		}

		svc, err := auth.NewTokenService(auth.Config{
			Secret:     cfg.Auth.Secret,
			Issuer:     cfg.Auth.Issuer,
			DefaultTTL: cfg.Auth.TokenTTL,
		}, st)
		if err != nil {
			return err
		}

		token, err := issueToken(ctx, st, svc, tokenUser, tokenAgent, tokenTTL)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if err := output.PrintPairs(out, [][2]string{
			{"User", tokenUser},
			{"Agent", token.Agent},
			{"Expires", token.Expired.Format(time.RFC3339)},
		}); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "\n%s\n", token.Key)
		return nil
	})
}

// issueToken signs a token against the user's first credentials,
// creating credentials when the user has none.
func issueToken(ctx context.Context, st store.Store, svc *auth.TokenService, name, agent string, ttl time.Duration) (*models.UserToken, error) {
	user, err := st.GetUser(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, fmt.Errorf("user %q not found", name)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	creds, err := st.ListCredentialsForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	var credsID string
	if len(creds) > 0 {
		credsID = creds[0].ID
	} else {
		credsID, err = st.CreateCredentials(ctx, &models.UserCredentials{ModelID: user.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to create credentials: %w", err)
		}
	}

	token, err := svc.Issue(ctx, credsID, agent, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}
