package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/mintline"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mintline",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mintline version %s\n", strings.TrimSpace(mintline.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
