// Command seqdag is the thin CLI wrapper around the content-addressed
// sequence store: init, ingest, list, info, sync, verify, resolve, get.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seqdag/seqdag/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cliError carries a resolved process exit code out of a cobra RunE, so run can
// report the precise code instead of cobra's blanket "1" for any error.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func usageError(err error) error { return &cliError{code: 2, err: err} }

// run builds the command tree and executes it against args, writing to
// stdout/stderr instead of the process streams so it can be exercised
// directly in tests (ported from cmd/rubin-node's run(args, stdout,
// stderr) int shape, cobra in place of flag).
func run(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "seqdag",
		Short:         "content-addressed storage and sync for sequence databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	var dataDir string
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "base directory (default $SEQDAG_DATA_DIR or ~/.seqdag)")

	// Layering order: defaults, then config.toml, then
	// SEQDAG_* environment variables, then CLI flags — each overriding the
	// last. data-dir itself has to be resolved before config.toml can even
	// be located, so it's settled first from flag-or-env-or-default and
	// reapplied at the end so the flag always wins over a stale on-disk
	// data_dir field.
	loadConfig := func() (config.Config, error) {
		cfg := config.Default()
		if v := os.Getenv("SEQDAG_DATA_DIR"); v != "" {
			cfg.DataDir = v
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}

		cfg, err := config.Load(configPath(cfg), cfg)
		if err != nil {
			return config.Config{}, usageError(err)
		}
		cfg, err = config.FromEnv(cfg)
		if err != nil {
			return config.Config{}, usageError(err)
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if err := config.Validate(cfg); err != nil {
			return config.Config{}, usageError(err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newInitCmd(loadConfig),
		newIngestCmd(loadConfig, logger),
		newListCmd(loadConfig, logger),
		newInfoCmd(loadConfig, logger),
		newSyncCmd(loadConfig, logger),
		newVerifyCmd(loadConfig, logger),
		newResolveCmd(loadConfig, logger),
		newGetCmd(loadConfig, logger),
	)

	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}

	var ce *cliError
	if errors.As(err, &ce) {
		fmt.Fprintln(stderr, ce.err)
		return ce.code
	}
	fmt.Fprintln(stderr, err)
	return 2
}
