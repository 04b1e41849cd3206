package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sift",
	Short: "Daily search collection and scoring pipeline",
	Long: `sift runs the daily collection job: it fans the day's queries out to
the metasearch service, scores every result for host authority and
query relevance, and writes the scored tables for downstream use.

Credentials come from the environment:
  METASEARCH_API_KEY, METASEARCH_ENDPOINT
  DIRECT_LLM_API_KEY, DIRECT_LLM_BASE_URL
  AUTHORITY_MODEL, RELEVANCE_MODEL (optional)`,
	SilenceUsage: true,
}
