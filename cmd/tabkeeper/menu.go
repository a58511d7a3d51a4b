package main

import (
	"fmt"

	"github.com/aretw0/tabkeeper/pkg/catalog"
	"github.com/spf13/cobra"
)

var menuCmd = &cobra.Command{
	Use:   "menu [file]",
	Short: "Print or validate a menu",
	Long: `Without arguments, prints the configured menu (catalog.path, or the
built-in menu) as YAML. With a file argument, validates that file and prints
it normalized.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			menu *catalog.Menu
			err  error
		)
		switch {
		case len(args) == 1:
			menu, err = catalog.Load(args[0])
		default:
			cfg, cfgErr := loadConfig(cmd)
			if cfgErr != nil {
				return cfgErr
			}
			if cfg.Catalog.Path == "" {
				menu = catalog.Default()
			} else {
				menu, err = catalog.Load(cfg.Catalog.Path)
			}
		}
		if err != nil {
			return err
		}

		data, err := menu.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
}
