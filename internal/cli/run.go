package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/fargate-executor/internal/app"
	"github.com/sakif/fargate-executor/internal/config"
	"github.com/sakif/fargate-executor/internal/executor"
	"github.com/sakif/fargate-executor/internal/service"
)

var (
	runLanguage string
	runBackend  string
	runPip      []string
	runEnv      []string
	runSubnets  []string
	runTimeout  time.Duration
)

// extensionLanguages maps file extensions to the language names the
// script builder understands.
var extensionLanguages = map[string]string{
	".py":   "python",
	".sh":   "sh",
	".bash": "bash",
	".js":   "javascript",
	".mjs":  "javascript",
}

func init() {
	runCmd.Flags().StringVarP(&runLanguage, "lang", "l", "", "language of every file (default: from the file extension)")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "executor backend: fargate or docker (default from config)")
	runCmd.Flags().StringSliceVar(&runPip, "pip", nil, "pip packages to install before running (repeatable)")
	runCmd.Flags().StringArrayVarP(&runEnv, "env", "e", nil, "environment variable KEY=value (repeatable)")
	runCmd.Flags().StringSliceVar(&runSubnets, "subnet", nil, "subnet for the task's network interface (repeatable)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "maximum time to wait for the task to stop")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <file>...",
	Short: "Run one or more source files as a single batch",
	Long: `Run reads each file as one code block and executes them in order in a
single task. Use "-" to read a block from stdin (requires --lang).

The command exits with the status of the last block.`,
	Example: `  fargate-exec run hello.py
  fargate-exec run --pip pandas,requests analysis.py report.sh
  echo 'print(1 + 1)' | fargate-exec run --lang python -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blocks, err := readBlocks(args, runLanguage)
		if err != nil {
			return err
		}
		req := executor.ExecutionRequest{Blocks: blocks}
		if err := service.Validate(req); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyRunFlags(&cfg); err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exec, closeExec, err := app.NewExecutor(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeExec()

		fmt.Fprintln(stderr(), styleDim.Render(fmt.Sprintf("running %d block(s) on %s...", len(blocks), cfg.Backend)))

		result, err := exec.Execute(ctx, req)
		if err != nil {
			return err
		}

		fmt.Fprint(stdout(), result.Output)
		if result.Output != "" && !strings.HasSuffix(result.Output, "\n") {
			fmt.Fprintln(stdout())
		}

		summary := fmt.Sprintf("exit %d in %s", result.ExitCode, result.Duration.Round(time.Second))
		if result.TaskARN != "" {
			summary += " (" + result.TaskARN + ")"
		}
		if result.ExitCode != 0 {
			fmt.Fprintln(stderr(), styleError.Render("✗ ")+summary)
			return &ExitError{Code: result.ExitCode}
		}
		fmt.Fprintln(stderr(), styleSuccess.Render("✓ ")+summary)
		return nil
	},
}

// applyRunFlags overrides configuration with the flags that were set.
func applyRunFlags(cfg *config.Config) error {
	if runBackend != "" {
		cfg.Backend = runBackend
	}

	env, err := parseEnv(runEnv)
	if err != nil {
		return err
	}

	if len(runPip) > 0 {
		cfg.Fargate.PipDependencies = runPip
		cfg.Docker.PipDependencies = runPip
	}
	if len(env) > 0 {
		cfg.Fargate.Environment = mergeEnv(cfg.Fargate.Environment, env)
		cfg.Docker.Environment = mergeEnv(cfg.Docker.Environment, env)
	}
	if len(runSubnets) > 0 {
		cfg.Fargate.Subnets = runSubnets
	}
	if runTimeout > 0 {
		cfg.Fargate.Timeout = runTimeout
		cfg.Docker.Timeout = runTimeout
	}
	return cfg.Validate()
}

// readBlocks turns each path into a code block. "-" reads stdin.
func readBlocks(paths []string, language string) ([]executor.CodeBlock, error) {
	blocks := make([]executor.CodeBlock, 0, len(paths))
	for _, path := range paths {
		lang := language
		if lang == "" {
			var ok bool
			if lang, ok = languageFromPath(path); !ok {
				return nil, fmt.Errorf("cannot tell the language of %s; pass --lang", path)
			}
		}

		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(rootCmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		blocks = append(blocks, executor.CodeBlock{Code: string(data), Language: lang})
	}
	return blocks, nil
}

func languageFromPath(path string) (string, bool) {
	lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// parseEnv parses KEY=value pairs. The value may contain "=".
func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=value", pair)
		}
		env[key] = value
	}
	return env, nil
}

func mergeEnv(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
