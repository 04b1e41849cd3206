package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/FranksOps/sift/internal/faillog"
)

var (
	failuresDB    string
	failuresStage string
	failuresJSON  bool
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List permanently failed operations from a run's failure log",
	Args:  cobra.NoArgs,
	RunE:  runFailures,
}

func init() {
	failuresCmd.Flags().StringVar(&failuresDB, "faillog", "", "SQLite failure log path")
	failuresCmd.Flags().StringVar(&failuresStage, "stage", "search", "stage to list (search, authority, relevance)")
	failuresCmd.Flags().BoolVar(&failuresJSON, "json", false, "output as JSON")
	failuresCmd.MarkFlagRequired("faillog")
	rootCmd.AddCommand(failuresCmd)
}

func runFailures(cmd *cobra.Command, args []string) error {
	stage := faillog.Stage(failuresStage)
	switch stage {
	case faillog.StageSearch, faillog.StageAuthority, faillog.StageRelevance:
	default:
		return fmt.Errorf("unknown stage %q", failuresStage)
	}

	log, err := faillog.Open(failuresDB)
	if err != nil {
		return err
	}
	defer log.Close()

	entries, err := log.ByStage(cmd.Context(), stage)
	if err != nil {
		return err
	}

	if failuresJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		target := e.Query
		if stage == faillog.StageAuthority {
			target = e.Host
		} else if e.URL != "" {
			target = e.URL
		}
		fmt.Printf("%s  %-10s  %-40s  %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Stage, target, e.Error)
	}
	fmt.Printf("%d failures\n", len(entries))
	return nil
}
