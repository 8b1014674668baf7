package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/safeocr/internal/gcp"
	"github.com/Lllllllleong/safeocr/internal/services"
	"github.com/spf13/cobra"
)

func newRecoverCmd() *cobra.Command {
	var (
		root    string
		execute bool
		exts    []string
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Clean up or finish work left behind by an interrupted run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				return fmt.Errorf("--root is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			items, err := services.Recover(ctx, services.RecoveryConfig{
				Root:       root,
				Extensions: services.NormalizeExtensions(exts),
				Execute:    execute,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, it := range items {
				fmt.Fprintf(out, "%-13s applied=%-5t  %s\n", it.Action, it.Applied, it.TempPath)
				if it.Err != nil {
					failed++
					fmt.Fprintf(out, "  error: %v\n", it.Err)
				}
			}
			fmt.Fprintf(out, "%d leftover temp files found\n", len(items))
			if !execute && len(items) > 0 {
				fmt.Fprintln(out, "NOTE: report only. Re-run with --execute to apply.")
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d recovery steps failed", services.ErrCommit, failed)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&root, "root", gcp.GetEnv(gcp.EnvKey("root"), ""), "Directory tree to sweep (required)")
	f.BoolVar(&execute, "execute", gcp.GetEnvBool(gcp.EnvKey("execute"), false), "Apply the recovery actions")
	f.StringSliceVar(&exts, "ext", splitList(gcp.GetEnv(gcp.EnvKey("ext"), ".pdf")), "File extensions to sweep")
	return cmd
}
