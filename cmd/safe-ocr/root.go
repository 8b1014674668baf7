package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Lllllllleong/safeocr/internal/gcp"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:   "safe-ocr",
		Short: "Add a text layer to scanned PDFs without ever overwriting the original.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(logLevel)
			if err != nil {
				return err
			}
			// --- Set up structured logging ---
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", gcp.GetEnv(gcp.EnvKey("log-level"), "info"), "Log level: debug, info, warn or error")

	root.AddCommand(newRunCmd(), newRecoverCmd(), newLedgerCmd())
	return root
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
