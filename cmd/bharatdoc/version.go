package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/bharatdoc-worker/internal/version"
)

var versionCmd = &cobra.Command{
	Use:              "version",
	Short:            "Print version information",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bharatdoc %s\n", version.GitRelease)
		fmt.Printf("  Go:     %s\n", version.GoInfo)
		fmt.Printf("  Commit: %s\n", version.GitCommit)
		fmt.Printf("  Date:   %s\n", version.GitCommitDate)
	},
}
