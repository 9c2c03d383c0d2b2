package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manPage, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err
		}

		manPage = manPage.WithSection("Rule documents",
			"Rule documents are YAML files holding an ordered list of rules. "+
				"Per-package overrides live in the overrides directory, one "+
				"document per package, named after it (com.example.app.yaml).")
		fmt.Println(manPage.Build(roff.NewDocument()))
		return nil
	},
}
