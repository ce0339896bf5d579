package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/internal/config"
	"github.com/hupe1980/vecforge/persistence"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommand_AllSubcommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"generate", "build", "search", "inspect", "bench", "serve", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "vecforge dev"))
}

func TestGenerateBuildSearchInspect(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "vectors.bin")
	index := filepath.Join(dir, "vectors.vfg")

	out, err := execute(t, "generate", data, "-n", "200", "-d", "8", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 200 vectors of dimension 8")

	st, err := os.Stat(data)
	require.NoError(t, err)
	assert.Equal(t, int64(200*8*4), st.Size())

	out, err = execute(t, "build", data, "-d", "8", "-o", index, "--compression", "lz4")
	require.NoError(t, err)
	assert.Contains(t, out, "built 200 vectors of dimension 8")
	assert.Contains(t, out, "lz4")

	out, err = execute(t, "search", index, data, "--queries", "1", "-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "query 0:")
	assert.Contains(t, out, "id=0  distance=0")

	out, err = execute(t, "inspect", index)
	require.NoError(t, err)
	assert.Contains(t, out, "vectors")
	assert.Contains(t, out, "200")
	assert.Contains(t, out, "lz4")
}

func TestBuildOnAcceleratorFromArrow(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "vectors.arrow")

	_, err := execute(t, "generate", data, "-n", "100", "-d", "4", "--clusters", "4")
	require.NoError(t, err)

	out, err := execute(t, "build", data, "--device", "gpu")
	require.NoError(t, err)
	assert.Contains(t, out, "gpu")

	info, err := persistence.Inspect(data + persistence.Extension)
	require.NoError(t, err)
	assert.Equal(t, 100, info.Len)
	assert.Equal(t, 4, info.Dim)
}

func TestSearchWithAllowList(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "vectors.bin")

	_, err := execute(t, "generate", data, "-n", "50", "-d", "4")
	require.NoError(t, err)
	_, err = execute(t, "build", data, "-d", "4")
	require.NoError(t, err)

	out, err := execute(t, "search", data+persistence.Extension, data, "-k", "3", "--allow", "5,6,7")
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		assert.Regexp(t, `id=[567] `, line)
	}
}

func TestBenchCommand(t *testing.T) {
	out, err := execute(t, "bench", "-n", "300", "-d", "8", "--queries", "5", "-k", "10", "--clusters", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "recall@10:")
	assert.Contains(t, out, "300 x 8")
}

func TestBuildErrors(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "vectors.bin")
	_, err := execute(t, "generate", data, "-n", "10", "-d", "4")
	require.NoError(t, err)

	_, err = execute(t, "build", data)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = execute(t, "build", data, "-d", "3")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = execute(t, "build", data, "-d", "4", "--device", "tpu")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = execute(t, "build", filepath.Join(dir, "missing.bin"), "-d", "4")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrIO)
}

func TestInspectCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.vfg")
	require.NoError(t, os.WriteFile(path, []byte("VFG"), 0o600))

	_, err := execute(t, "inspect", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrCorruptFormat)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vecforge.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("persistence:\n  compression: zstd\n"), 0o600))

	data := filepath.Join(dir, "vectors.bin")
	_, err := execute(t, "generate", data, "-n", "20", "-d", "4")
	require.NoError(t, err)

	out, err := execute(t, "-c", cfgPath, "build", data, "-d", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "zstd")

	_, err = execute(t, "-c", filepath.Join(dir, "missing.yaml"), "version")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrIO)
}

func TestServeStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := executeContext(t, ctx, "serve", "--listen", "127.0.0.1:0", "--root", root)
	require.NoError(t, err)
}

func TestOpenStores(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "objects")

	cfg := configFor(t)
	cfg.Storage.Root = root
	buckets, err := openBuckets(ctx, cfg.Storage)
	require.NoError(t, err)
	require.NotNil(t, buckets)
	assert.DirExists(t, root)

	cfg.Storage.Backend = "ftp"
	_, err = openBuckets(ctx, cfg.Storage)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	store, err := openJobStore(ctx, cfg.Jobs, cfg.Storage)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg.Jobs.Backend = "sqlite"
	cfg.Jobs.SQLitePath = filepath.Join(t.TempDir(), "jobs.db")
	store, err = openJobStore(ctx, cfg.Jobs, cfg.Storage)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg.Jobs.Backend = "redis"
	_, err = openJobStore(ctx, cfg.Jobs, cfg.Storage)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func configFor(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}
