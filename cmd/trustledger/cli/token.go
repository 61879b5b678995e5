package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/trustledger/internal/platform/authn"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

func newTokenCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <principal>",
		Short: "Issue a bearer token for principal signed with AUTH_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer := os.Getenv("AUTH_JWT_ISSUER")
			if issuer == "" {
				issuer = "trustledger"
			}
			v := authn.NewVerifier(os.Getenv("AUTH_JWT_SECRET"), issuer, os.Getenv("AUTH_JWT_AUDIENCE"))
			if v == nil {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			token, err := v.Issue(shared.ParsePrincipal(args[0]), ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
