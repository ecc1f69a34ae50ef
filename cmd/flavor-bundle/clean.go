// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/provide-io/flavor/go/bundle/pkg/bundle/builder"
	"github.com/spf13/cobra"
)

func newCleanCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "clean <descriptor>...",
		Short: "Remove built bundles and leftover staging directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.loadDescriptors(args)
			if err != nil {
				return err
			}
			dir := a.outputDir(cmd, output)
			var errs []error
			for _, d := range ds {
				n := builder.CleanStaging(dir, d.OutputName, a.logger)
				if err := builder.Clean(dir, d.OutputName, a.logger); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🧹 %s (%d leftovers)\n", d.OutputName, n)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default from config: dist)")
	return cmd
}
