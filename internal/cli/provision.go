package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/fargate-executor/internal/executor/fargate"
)

var provisionSubnets []string

func init() {
	provisionCmd.Flags().StringSliceVar(&provisionSubnets, "subnet", nil, "subnet to validate the configuration with (repeatable)")
	rootCmd.AddCommand(provisionCmd)
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create the IAM execution role and ECS cluster if they are missing",
	Long: `Provision makes sure the IAM task execution role and the ECS cluster
exist, creating them when needed, and prints their ARNs. It is safe to run
repeatedly. Running a batch provisions the same resources on demand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(provisionSubnets) > 0 {
			cfg.Fargate.Subnets = provisionSubnets
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exec, err := fargate.NewFromAWS(ctx, cfg.Fargate, logger)
		if err != nil {
			return err
		}

		fc := exec.Config()
		fmt.Fprintln(stdout(), styleSuccess.Render("✓ ")+"resources ready")
		fmt.Fprintln(stdout(), field("region", fc.Region))
		fmt.Fprintln(stdout(), field("role", exec.RoleARN()))
		fmt.Fprintln(stdout(), field("cluster", exec.ClusterARN()))
		fmt.Fprintln(stdout(), field("logs", fc.LogGroup))
		return nil
	},
}
