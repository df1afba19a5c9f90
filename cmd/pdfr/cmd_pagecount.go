package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsscheller/pdfr/config"
	"github.com/jsscheller/pdfr/engine"
)

// getPageCountCmd returns the definition of the page-count command.
func getPageCountCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "page-count PDF",
		Short: "Print the number of pages in a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.PageCount(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return nil
		},
	}
}
