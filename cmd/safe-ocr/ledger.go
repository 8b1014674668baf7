package main

import (
	"fmt"

	"github.com/Lllllllleong/safeocr/internal/gcp"
	"github.com/Lllllllleong/safeocr/internal/ledger"
	"github.com/Lllllllleong/safeocr/internal/models"
	"github.com/spf13/cobra"
)

func newLedgerCmd() *cobra.Command {
	var (
		dbPath string
		runID  string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print outcome counts by state from a SQLite ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("--ledger is required")
			}
			st, err := ledger.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if runID == "" && !all {
				if runID, err = st.LatestRunID(ctx); err != nil {
					return err
				}
			}
			m, err := st.Stats(ctx, runID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			label := runID
			if label == "" {
				label = "all runs"
			}
			fmt.Fprintf(out, "run=%s skipped=%d would_process=%d committed=%d failed=%d\n",
				label, m[models.StateSkipped], m[models.StateWouldProcess], m[models.StateCommitted], m[models.StateFailed])

			if runID == "" {
				return nil
			}
			failures, err := st.Failures(ctx, runID)
			if err != nil {
				return err
			}
			for _, rec := range failures {
				fmt.Fprintf(out, "failed  attempts=%d  %s\n  error: %s\n", rec.Attempts, rec.Path, rec.ErrorMessage)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&dbPath, "ledger", gcp.GetEnv(gcp.EnvKey("ledger"), ""), "SQLite ledger file (required)")
	f.StringVar(&runID, "run", "", "Run ID to report (default: most recent run)")
	f.BoolVar(&all, "all", false, "Report counts across every run")
	return cmd
}
