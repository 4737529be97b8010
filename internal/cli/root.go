// Package cli implements the fargate-exec command line tool.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/fargate-executor/internal/app"
	"github.com/sakif/fargate-executor/internal/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "fargate-exec",
	Short: "Run code blocks in a one-off AWS Fargate task",
	Long: `fargate-exec runs batches of code blocks in a single ECS Fargate task
and prints the combined output from CloudWatch Logs.

The IAM execution role and ECS cluster are created on first use.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries the exit code of a batch that ran but failed, so the
// process can exit with the same status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("batch exited with status %d", e.Code)
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", styleError.Render("error:"), err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log AWS calls and task state changes")
}

// loadConfig reads the config file and environment. Command flags are
// applied by the caller afterwards.
func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// newLogger logs to stderr so stdout carries only the batch output.
// Without --verbose only warnings and errors are shown.
func newLogger(cfg config.Config) *slog.Logger {
	if !verbose {
		cfg.LogLevel = "warn"
	} else {
		cfg.LogLevel = "debug"
	}
	return app.NewLogger(stderr(), cfg)
}

func stderr() io.Writer { return rootCmd.ErrOrStderr() }
func stdout() io.Writer { return rootCmd.OutOrStdout() }
