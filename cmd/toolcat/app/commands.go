// Package app provides the commands of the toolcat command-line application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/config"
	"github.com/radutopala/toolcat/internal/embedding"
	"github.com/radutopala/toolcat/internal/storage"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// EnvLogFile names the environment variable redirecting logs to a file.
const EnvLogFile = "TOOLCAT_LOG_FILE"

// ExitError carries a process exit code for failures that were already
// reported to the user.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps a command error onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// NewRootCmd creates the root command for the toolcat CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "toolcat",
		Short:         "toolcat is a semantic catalog of invocable tools",
		Long:          `toolcat ingests tool descriptors, embeds them and stores them in a vector catalog, then answers "which tools fit this intent on these platforms" queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default $TOOLCAT_CONFIG or ./toolcat.yaml)")
	flags.String("store", "", "Catalog location: SQLite path, postgres:// URL or memory:")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("embedding-provider", "", "Embedding provider (hash, openai, ollama)")
	flags.String("embedding-model", "", "Embedding model for model-backed providers")
	flags.Int("dimension", 0, "Embedding dimension")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newSelectCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newServeCmd())

	return rootCmd
}

// env holds everything a command needs, built from configuration.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func() error
}

func newEnv(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}
	logger, closeLog, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	e.logger = logger
	e.closers = append(e.closers, closeLog)
	return e, nil
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

// provider builds the embedding provider chain, caching model embeddings in
// Redis when a cache is configured.
func (e *env) provider(ctx context.Context) (embedding.Provider, error) {
	var opts []embedding.Option
	if e.cfg.Cache.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     e.cfg.Cache.Addr,
			Password: e.cfg.Cache.Password,
			DB:       e.cfg.Cache.DB,
		})
		e.closers = append(e.closers, client.Close)
		opts = append(opts, embedding.WithCache(client, e.cfg.Cache.TTL))
	}

	return embedding.New(ctx, e.cfg.Embedding, e.logger, opts...)
}

// store opens the configured catalog. The returned error is a
// *catalog.ConnectionError when the store cannot be reached.
func (e *env) store(ctx context.Context) (catalog.Store, error) {
	store, err := storage.Open(ctx, e.cfg.Store, e.cfg.Embedding.Dimension, e.logger)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, store.Close)
	return store, nil
}

// newLogger builds a text logger on stderr, or on the file named by
// TOOLCAT_LOG_FILE when set.
func newLogger(level string, stderr io.Writer) (*slog.Logger, func() error, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	out := stderr
	closeFn := func() error { return nil }
	if logPath := os.Getenv(EnvLogFile); logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = logFile
			closeFn = logFile.Close
		}
		// Fallback to stderr if we can't open the log file
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
	return logger, closeFn, nil
}
