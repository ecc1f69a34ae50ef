// SPDX-License-Identifier: Apache-2.0

// Package pkg is the embedding API: build a bundle from a descriptor file,
// verify a built bundle, or launch one in-process.
package pkg

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/builder"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/descriptor"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/launcher"
	"github.com/provide-io/flavor/go/bundle/pkg/logging"
)

// BuildBundle loads the descriptor at descriptorPath and builds it.
func BuildBundle(ctx context.Context, descriptorPath string, opts builder.Options) (*builder.Result, error) {
	d, err := descriptor.NewLoader(nil, opts.Logger).Load(descriptorPath)
	if err != nil {
		return nil, err
	}
	return builder.New(opts).Build(ctx, d)
}

// LaunchBundle runs the bundle whose launcher is exePath with the calling
// process's stdio, returning the entry point's exit code.
func LaunchBundle(ctx context.Context, exePath string, args []string, logger hclog.Logger) (int, error) {
	b, err := launcher.Open(exePath)
	if err != nil {
		return launcher.ExitCode(err), err
	}
	l := launcher.New(b, launcher.Options{
		Validation: launcher.ValidationLevelFromEnv(),
		Logger:     logging.OrNull(logger),
	})
	return l.Run(ctx, args)
}
