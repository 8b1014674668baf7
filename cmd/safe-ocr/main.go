package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("safe-ocr failed.", "error", err)
		os.Exit(2)
	}
}
