// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/internal/buildinfo"
	"github.com/provide-io/flavor/go/bundle/internal/config"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand, filled in by the root
// command's PersistentPreRunE.
type app struct {
	configFile string
	logLevel   string

	cfg    *config.Config
	logger hclog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "flavor-bundle",
		Short:         "Build distributable bundles from descriptors",
		Long:          `Build distributable bundles from declarative descriptors (HCL, TOML, YAML or JSON).`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("flavor-bundle {{.Version}}\nBuilt: %s\n", buildinfo.Timestamp()))

	root.Flags().BoolP("version", "V", false, "Show version information")
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (default: ./flavor-bundle.toml or the XDG config dir)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, json:<level>)")

	root.AddCommand(
		newBuildCmd(a),
		newValidateCmd(a),
		newInspectCmd(a),
		newCleanCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(config.Options{File: a.configFile})
	if err != nil {
		return err
	}
	a.cfg = cfg

	lvl := logging.ResolveLevel(a.logLevel, "FLAVOR_BUNDLE_LOG_LEVEL", cfg.LogLevel)
	level := lvl.Name
	if lvl.JSON {
		level = "json:" + lvl.Name
	}
	a.logger = logging.NewLogger(logging.Options{Name: "flavor-bundle", Level: level})
	a.logger.Debug("🐹🐹🐹 Hello from flavor-bundle 🐹🐹🐹", "version", buildinfo.Version)
	a.logger.Debug("Log level", "level", lvl.Name, "source", lvl.Source)
	if cfg.File != "" {
		a.logger.Debug("⚙️ Config loaded", "file", cfg.File)
	}
	return nil
}

// loadDescriptors loads every path, reporting all failures together.
func (a *app) loadDescriptors(paths []string) ([]*descriptor.Descriptor, error) {
	loader := descriptor.NewLoader(nil, a.logger)
	ds := make([]*descriptor.Descriptor, 0, len(paths))
	for _, p := range paths {
		d, err := loader.Load(p)
		if err != nil {
			return nil, err
		}
		ds = append(ds, d)
	}
	return ds, nil
}

// outputDir returns the --output flag value or the configured default.
func (a *app) outputDir(cmd *cobra.Command, flag string) string {
	if cmd.Flags().Changed("output") {
		return flag
	}
	return a.cfg.OutputDir
}
