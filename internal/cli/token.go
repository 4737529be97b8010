package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/fargate-executor/internal/auth"
)

var tokenTTL time.Duration

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTTL, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint an API bearer token",
	Long: `Token signs a JWT for subject with the server's JWT_SECRET. The subject
is recorded with every execution the token is used for.`,
	Example: `  curl -H "Authorization: Bearer $(fargate-exec token ci)" localhost:8080/api/executions`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set; the server accepts requests without a token")
		}
		if tokenTTL <= 0 {
			return fmt.Errorf("--ttl must be positive, got %s", tokenTTL)
		}

		tokens, err := auth.NewTokenService(cfg.JWTSecret)
		if err != nil {
			return err
		}
		token, err := tokens.GenerateWithDuration(args[0], tokenTTL)
		if err != nil {
			return err
		}

		fmt.Fprintln(stdout(), token)
		return nil
	},
}
