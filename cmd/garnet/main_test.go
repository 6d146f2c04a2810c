package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/garnet/image"
	"github.com/chazu/garnet/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, dir string, build func(b *vm.IrepBuilder)) string {
	t.Helper()
	st := vm.NewSymbolTable()
	b := vm.NewIrepBuilder(st, 1, 4).SetFilename("test.rb")
	build(b)
	data, err := image.Encode(b.MustBuild(), st)
	require.NoError(t, err)

	path := filepath.Join(dir, "prog.gimg")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func writeConfigFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "garnet.toml")
	require.NoError(t, os.WriteFile(path, []byte("[vm]\nmax-call-depth = 64\n"), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunPrintsResult(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, dir, func(b *vm.IrepBuilder) {
		b.LoadString(2, "hello")
		b.SSend(1, "puts", 1, 0, false)
		b.LoadInt(1, 40)
		b.LoadInt(2, 2)
		b.Emit(vm.OpAdd, 1)
		b.Emit(vm.OpReturn, 1)
	})

	stdout, _, err := execute(t, "run", "--config", writeConfigFile(t, dir), img)
	require.NoError(t, err)
	assert.Equal(t, "hello\n42\n", stdout)
}

func TestRunProfile(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, dir, func(b *vm.IrepBuilder) {
		b.LoadString(2, "a")
		b.SSend(1, "puts", 1, 0, false)
		b.LoadString(2, "b")
		b.SSend(1, "puts", 1, 0, false)
		b.LoadInt(1, 7)
		b.Emit(vm.OpReturn, 1)
	})

	stdout, stderr, err := execute(t, "run", "--profile", "3", "--config", writeConfigFile(t, dir), img)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n7\n", stdout)
	assert.Contains(t, stderr, "#puts")
	assert.Regexp(t, `(?m)^\s+2  \S+#puts$`, stderr)
}

func TestRunUncaughtException(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, dir, func(b *vm.IrepBuilder) {
		b.LoadString(2, "boom")
		b.SSend(1, "raise", 1, 0, false)
		b.Emit(vm.OpReturn, 1)
	})

	stdout, stderr, err := execute(t, "run", "--config", writeConfigFile(t, dir), img)
	require.ErrorIs(t, err, errUncaught)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "RuntimeError: boom")
}

func TestRunMissingImage(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "run", "--config", writeConfigFile(t, dir), filepath.Join(dir, "nope.gimg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read")
}

func TestRunBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garnet.toml")
	require.NoError(t, os.WriteFile(path, []byte("[vm]\nstack-size = -1\n"), 0644))

	_, _, err := execute(t, "run", "--config", path, filepath.Join(dir, "x.gimg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stack-size")
}

func TestDisasm(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, dir, func(b *vm.IrepBuilder) {
		b.LoadSym(1, "marker")
		b.Emit(vm.OpReturn, 1)
	})

	stdout, _, err := execute(t, "disasm", "--config", writeConfigFile(t, dir), img)
	require.NoError(t, err)
	assert.Contains(t, stdout, "image ")
	assert.Contains(t, stdout, " sha256:")
	assert.Contains(t, stdout, "LOADSYM")
	assert.Contains(t, stdout, "marker")
	assert.Contains(t, stdout, "RETURN")
}

func TestVersion(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := execute(t, "version", "--config", writeConfigFile(t, dir))
	require.NoError(t, err)
	assert.Equal(t, "garnet version "+version+"\n", stdout)
}
