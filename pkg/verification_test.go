// SPDX-License-Identifier: Apache-2.0

package pkg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/provide-io/flavor/go/bundle/pkg/bundle/builder"
	bundleerrors "github.com/provide-io/flavor/go/bundle/pkg/bundle/errors"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}
	write("main.sh", "echo hi\n")
	write("readme.txt", "read me\n")
	launcherBin := write("launcher", "#!/bin/sh\n")
	desc := write("tool.yaml", "output_name: tool\nentry_point: main.sh\nwalker: none\ninterpreter: sh\ndata_mappings:\n  - [readme.txt, docs]\n")

	t.Setenv("SOURCE_DATE_EPOCH", "")
	res, err := BuildBundle(context.Background(), desc, builder.Options{
		OutputDir:   filepath.Join(dir, "dist"),
		LauncherBin: launcherBin,
		Keys:        manifest.KeyOptions{Seed: "api-tests"},
	})
	require.NoError(t, err)
	return res.OutputDir
}

func TestVerifyBundle(t *testing.T) {
	dir := buildTestBundle(t)

	report, err := VerifyBundle(dir, nil)
	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.Equal(t, "tool", report.Bundle.Manifest.Package.Name)

	names, err := ListArchive(report.Bundle)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.sh"}, names)
}

func TestVerifyBundleReportsEveryFailure(t *testing.T) {
	dir := buildTestBundle(t)
	report, err := VerifyBundle(dir, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "docs", "readme.txt")))
	f, err := os.OpenFile(report.Bundle.ArchivePath(), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("junk"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	report, err = VerifyBundle(dir, nil)
	require.NoError(t, err)
	verr := report.Err()
	assert.ErrorIs(t, verr, bundleerrors.ErrChecksumMismatch)
	assert.Contains(t, verr.Error(), "data file docs/readme.txt")
}

func TestVerifyBundleNotABundle(t *testing.T) {
	_, err := VerifyBundle(t.TempDir(), nil)
	assert.ErrorContains(t, err, "is not a bundle")
}
