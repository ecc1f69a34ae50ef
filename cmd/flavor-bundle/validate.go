// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	var forced bool
	cmd := &cobra.Command{
		Use:   "validate <descriptor>...",
		Short: "Check descriptors without building",
		Long: `Load and validate descriptors. Nothing is written: sources are checked for
existence and destinations for safety, and output names must be unique
across the given set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.loadDescriptors(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var errs []error
			for _, d := range ds {
				if err := descriptor.Validate(nil, d); err != nil {
					fmt.Fprintf(out, "❌ %s:\n", d.OutputName)
					for _, line := range strings.Split(err.Error(), "\n") {
						fmt.Fprintf(out, "   %s\n", line)
					}
					errs = append(errs, fmt.Errorf("%s: invalid descriptor", d.OutputName))
					continue
				}
				fmt.Fprintf(out, "✅ %s (%s)\n", d.OutputName, strings.Join(d.Fragments, " <- "))
			}
			if err := descriptor.ValidateSet(ds); err != nil {
				errs = append(errs, err)
			}
			if forced {
				fmt.Fprintln(out, "Forced modules:")
				for _, m := range descriptor.ResolveForcedModules(ds...) {
					fmt.Fprintf(out, "  %s\n", m)
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&forced, "forced", false, "Print the union of forced modules across descriptors")
	return cmd
}
