// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/provide-io/flavor/go/bundle/internal/buildinfo"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/builder"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/manifest"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type buildFlags struct {
	output      string
	clean       bool
	jobs        int
	launcherBin string
	keySeed     string
	privateKey  string
	publicKey   string
}

func newBuildCmd(a *app) *cobra.Command {
	f := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build <descriptor>...",
		Short: "Build one bundle per descriptor",
		Example: `  flavor-bundle build main_diff.hcl
  flavor-bundle build variants/*.toml --output dist --jobs 4 --clean`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd, f, args)
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory (default from config: dist)")
	cmd.Flags().BoolVar(&f.clean, "clean", false, "Remove the previous output before building")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "Number of descriptors built in parallel")
	cmd.Flags().StringVar(&f.launcherBin, "launcher-bin", "", "Path to launcher binary")
	cmd.Flags().StringVar(&f.keySeed, "key-seed", "", "Seed for deterministic signing keys (\"env\" reads FLAVOR_KEY_SEED)")
	cmd.Flags().StringVar(&f.privateKey, "private-key", "", "Path to private key (PEM format)")
	cmd.Flags().StringVar(&f.publicKey, "public-key", "", "Path to public key (PEM format, optional if private key provided)")
	cmd.MarkFlagsMutuallyExclusive("key-seed", "private-key")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, f *buildFlags, args []string) error {
	ds, err := a.loadDescriptors(args)
	if err != nil {
		return err
	}
	if err := descriptor.ValidateSet(ds); err != nil {
		return err
	}

	jobs := a.cfg.Jobs
	if cmd.Flags().Changed("jobs") {
		jobs = f.jobs
	}
	if jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}
	opts := builder.Options{
		OutputDir:          a.outputDir(cmd, f.output),
		Clean:              f.clean,
		LauncherBin:        pick(f.launcherBin, a.cfg.LauncherBin),
		DefaultInterpreter: a.cfg.DefaultInterpreter,
		ToolVersion:        buildinfo.Version,
		Logger:             a.logger,
		Keys:               a.keyOptions(f),
		OnStage: func(d *descriptor.Descriptor, s builder.Stage) {
			a.logger.Trace("Stage starting", "output", d.OutputName, "stage", s)
		},
	}
	b := builder.New(opts)

	a.logger.Info("🏗️ Building bundles", "count", len(ds), "output", opts.OutputDir, "jobs", jobs)
	results := make([]*builder.Result, len(ds))
	errs := make([]error, len(ds))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, d := range ds {
		g.Go(func() error {
			results[i], errs[i] = b.Build(cmd.Context(), d)
			return nil
		})
	}
	_ = g.Wait()

	out := cmd.OutOrStdout()
	failed := 0
	for i, d := range ds {
		if errs[i] != nil {
			failed++
			fmt.Fprintf(out, "❌ %s: %v\n", d.OutputName, errs[i])
			continue
		}
		r := results[i]
		fmt.Fprintf(out, "✅ %s -> %s (%d modules, %s, %s)\n", d.OutputName, r.OutputDir,
			len(r.Modules), humanSize(r.ArchiveSize), r.Duration.Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d builds failed", failed, len(ds))
	}
	return nil
}

// keyOptions lets a key flag replace the configured key source as a whole.
func (a *app) keyOptions(f *buildFlags) manifest.KeyOptions {
	switch {
	case f.privateKey != "":
		return manifest.KeyOptions{PrivateKeyPath: f.privateKey, PublicKeyPath: f.publicKey}
	case f.keySeed != "":
		return manifest.KeyOptions{Seed: f.keySeed}
	}
	return manifest.KeyOptions{
		PrivateKeyPath: a.cfg.PrivateKey,
		PublicKeyPath:  pick(f.publicKey, a.cfg.PublicKey),
		Seed:           a.cfg.KeySeed,
	}
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
