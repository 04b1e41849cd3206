package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sift version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("sift", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
