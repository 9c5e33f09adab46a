package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/quotation-workflow/internal/config"
	"github.com/garyjia/quotation-workflow/internal/container"
	"github.com/garyjia/quotation-workflow/pkg/utils"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for the workflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wfctl",
		Short: "Operate the quotation workflow engine",
		Long: `wfctl drives quotation workflows directly against the configured store.

Commands run with background workers disabled and wait for dispatched
actions to finish before exiting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "configs/config.yaml", "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level for diagnostics on stderr")

	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewProgressCommand(opts))
	cmd.AddCommand(NewDecideCommand(opts))
	cmd.AddCommand(NewEditedCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewDeadLettersCommand(opts))

	return cmd
}

// withContainer loads configuration, starts a worker-less container, runs fn
// and closes the container, which drains in-flight actions.
func withContainer(ctx context.Context, opts *RootOptions, fn func(ctx context.Context, c *container.Container) error) (err error) {
	path := opts.ConfigPath
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      opts.LogLevel,
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger, container.WithoutWorkers())
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to start container: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			logger.Error("Container close failed", zap.Error(closeErr))
			if err == nil {
				err = closeErr
			}
		}
	}()

	return fn(ctx, c)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDocumentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
