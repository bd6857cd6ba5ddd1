package main

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/virelay/errdefs"
	"github.com/robert-malhotra/virelay/internal/demo"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeDemo(t *testing.T, opts demo.Options) *demo.Layout {
	t.Helper()
	l, err := demo.Write(t.TempDir(), opts)
	require.NoError(t, err)
	return l
}

func TestList(t *testing.T) {
	a := writeDemo(t, demo.Options{Name: "alpha"})
	b := writeDemo(t, demo.Options{Name: "beta", Directory: true})

	out, err := run(t, "list", a.Manifest, b.Manifest)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "alpha")
	assert.Contains(t, lines[1], "demo-cnn")
	assert.Contains(t, lines[2], "beta samples")
}

func TestInspect(t *testing.T) {
	l := writeDemo(t, demo.Options{Samples: 4})

	out, err := run(t, "inspect", l.Manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "dataset:      demo samples (4 samples)")
	assert.Contains(t, out, "attributions: lrp/true_label (4)")
	assert.Contains(t, out, "analysis:     "+demo.AnalysisMethod+" (3 categories)")
	assert.Contains(t, out, "n02084071 (dog): clusterings [kmeans-2] embeddings [spectral tsne]")
}

func TestRender(t *testing.T) {
	l := writeDemo(t, demo.Options{Width: 6, Height: 4})
	dst := filepath.Join(t.TempDir(), "heat.png")

	for _, mode := range []string{"raw", "overlay", "attribution"} {
		_, err := run(t, "render", l.Manifest, "--index", "1", "--mode", mode, "--color-map", "blue-white-red", "-o", dst)
		require.NoError(t, err, mode)

		f, err := os.Open(dst)
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 6, img.Bounds().Dx(), mode)
		assert.Equal(t, 4, img.Bounds().Dy(), mode)
	}

	_, err := run(t, "render", l.Manifest, "--mode", "sepia", "-o", dst)
	assert.Error(t, err)
	_, err = run(t, "render", l.Manifest, "--color-map", "rainbow", "-o", dst)
	assert.Error(t, err)
	_, err = run(t, "render", l.Manifest, "--index", "99", "-o", dst)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestWalk(t *testing.T) {
	l := writeDemo(t, demo.Options{})

	out, err := run(t, "walk", l.Analysis)
	require.NoError(t, err)
	assert.Contains(t, out, "superblock v")
	assert.Contains(t, out, "group /n02084071")
	assert.Contains(t, out, "kmeans-2")
	assert.Contains(t, out, "attrs=[eigenvalue]")

	out, err = run(t, "walk", "--attrs", l.Analysis)
	require.NoError(t, err)
	assert.Contains(t, out, "/n02084071/embedding/spectral@eigenvalue = [0.9 0.5 0.1]")
	assert.Contains(t, out, "/n02084071/embedding/tsne@embedding = spectral")

	_, err = run(t, "walk", filepath.Join(t.TempDir(), "missing.h5"))
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)
}

func TestMkdemo(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "mkdemo", dir, "--name", "tiny", "--samples", "2", "--size", "4", "--directory")
	require.NoError(t, err)
	manifest := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, "tiny.yaml"), manifest)

	out, err = run(t, "inspect", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "(2 samples)")
}
