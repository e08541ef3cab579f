package generator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evador/internal/domain/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolchain.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
	return path
}

func testSpec(outfile string) entity.GenerationSpec {
	return entity.NewGenerationSpec(entity.GenerationSpec{
		Kind:         entity.OutputNative,
		OutFile:      outfile,
		Process:      "explorer.exe",
		Transformer:  entity.TransformerDonut,
		Architecture: entity.ArchX64,
	}, entity.BuildEncoderChain([]string{"xor"}), entity.NewModuleSet(entity.ModuleFindProcess))
}

func TestCommandFactory_UnknownKind(t *testing.T) {
	f := NewCommandFactory(CommandConfig{Command: "true"}, discardLogger())
	_, err := f.NewGenerator(entity.OutputKind("vbscript"))
	assert.Error(t, err)
}

func TestCommandFactory_FreshInstances(t *testing.T) {
	f := NewCommandFactory(CommandConfig{Command: "true"}, discardLogger())
	a, err := f.NewGenerator(entity.OutputNative)
	require.NoError(t, err)
	b, err := f.NewGenerator(entity.OutputNative)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestCommandGenerator_PassesSpecOnStdin(t *testing.T) {
	script := writeScript(t, `[ "$1" = "--quiet" ] || exit 9
[ "$2" = "native" ] || exit 8
cat > "$4"`)
	dir := t.TempDir()
	out := filepath.Join(dir, "target_X")

	f := NewCommandFactory(CommandConfig{Command: script, Args: []string{"--quiet"}, Timeout: 10 * time.Second}, discardLogger())
	gen, err := f.NewGenerator(entity.OutputNative)
	require.NoError(t, err)

	require.NoError(t, gen.Generate(context.Background(), filepath.Join(dir, "source_a.exe"), testSpec(out)))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "explorer.exe", got["process"])
	assert.Equal(t, []any{"xor"}, got["encoders"])
}

func TestCommandGenerator_ExitStatus(t *testing.T) {
	script := writeScript(t, `echo "secret path /opt/internal" >&2
exit 3`)

	gen, err := NewCommandFactory(CommandConfig{Command: script}, discardLogger()).NewGenerator(entity.OutputDotNet)
	require.NoError(t, err)

	err = gen.Generate(context.Background(), "source", testSpec(filepath.Join(t.TempDir(), "out")))
	var ge *entity.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "toolchain exited with status 3", ge.Reason)
	assert.NotContains(t, ge.Public(), "/opt/internal")
}

func TestCommandGenerator_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5")

	gen, err := NewCommandFactory(CommandConfig{Command: script, Timeout: 100 * time.Millisecond}, discardLogger()).NewGenerator(entity.OutputPowerShell)
	require.NoError(t, err)

	start := time.Now()
	err = gen.Generate(context.Background(), "source", testSpec(filepath.Join(t.TempDir(), "out")))
	var ge *entity.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "toolchain timed out", ge.Reason)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCommandGenerator_Canceled(t *testing.T) {
	script := writeScript(t, "exec sleep 5")

	gen, err := NewCommandFactory(CommandConfig{Command: script, Timeout: time.Minute}, discardLogger()).NewGenerator(entity.OutputNative)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err = gen.Generate(ctx, "source", testSpec(filepath.Join(t.TempDir(), "out")))
	var ge *entity.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "request canceled", ge.Reason)
}

func TestCommandGenerator_NotConfigured(t *testing.T) {
	gen, err := NewCommandFactory(CommandConfig{}, discardLogger()).NewGenerator(entity.OutputNative)
	require.NoError(t, err)

	err = gen.Generate(context.Background(), "source", testSpec("out"))
	var ge *entity.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "toolchain is not configured", ge.Reason)
}
