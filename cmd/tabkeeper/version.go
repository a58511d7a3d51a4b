package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/tabkeeper"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tabkeeper",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tabkeeper version %s\n", strings.TrimSpace(tabkeeper.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
