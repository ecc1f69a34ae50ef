// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/provide-io/flavor/go/bundle/pkg"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		list   bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <bundle-dir>",
		Short: "Show and verify a built bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				b, err := pkg.OpenBundleDir(args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(b.Manifest)
			}

			report, err := pkg.VerifyBundle(args[0], a.logger)
			if err != nil {
				return err
			}
			s := newStyle(out)
			fmt.Fprint(out, report.Bundle.Describe())
			for _, c := range report.Checks {
				if c.Err != nil {
					fmt.Fprintf(out, "%s %s: %v\n", s.bad, c.Name, c.Err)
				} else {
					fmt.Fprintf(out, "%s %s\n", s.ok, c.Name)
				}
			}

			if list {
				names, err := pkg.ListArchive(report.Bundle)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintf(out, "  %s\n", n)
				}
			}
			return report.Err()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw manifest")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "List the files in the module archive")
	return cmd
}

type style struct{ ok, bad string }

// newStyle drops emoji when out is not a terminal.
func newStyle(out io.Writer) style {
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return style{ok: "✅", bad: "❌"}
	}
	return style{ok: "[ok]", bad: "[failed]"}
}
