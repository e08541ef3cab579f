package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"evador/internal/domain/entity"
	"evador/internal/domain/repository"
)

const outputTailSize = 2048

// CommandConfig describes the external toolchain. It is invoked as
//
//	<Command> <Args...> <kind> <source> <outfile>
//
// with the JSON encoded GenerationSpec on stdin.
type CommandConfig struct {
	Command string
	Args    []string
	WorkDir string
	Timeout time.Duration
}

// CommandFactory builds a new CommandGenerator for every request.
type CommandFactory struct {
	cfg    CommandConfig
	logger *slog.Logger
}

func NewCommandFactory(cfg CommandConfig, logger *slog.Logger) *CommandFactory {
	return &CommandFactory{cfg: cfg, logger: logger}
}

var _ repository.GeneratorFactory = (*CommandFactory)(nil)

func (f *CommandFactory) NewGenerator(kind entity.OutputKind) (repository.ArtifactGenerator, error) {
	switch kind {
	case entity.OutputNative, entity.OutputDotNet, entity.OutputPowerShell:
	default:
		return nil, fmt.Errorf("unsupported output kind %q", kind)
	}
	return &CommandGenerator{
		kind:   kind,
		cfg:    f.cfg,
		logger: f.logger.With("kind", kind.String()),
	}, nil
}

// CommandGenerator runs the toolchain once. It captures the tool output and
// must not be reused.
type CommandGenerator struct {
	kind   entity.OutputKind
	cfg    CommandConfig
	logger *slog.Logger
	output bytes.Buffer
}

func (g *CommandGenerator) Generate(parent context.Context, sourcePath string, spec entity.GenerationSpec) error {
	if g.cfg.Command == "" {
		return &entity.GenerationError{Kind: g.kind, Reason: "toolchain is not configured"}
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		return &entity.GenerationError{Kind: g.kind, Reason: "invalid generation spec", Err: err}
	}

	ctx := parent
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, g.cfg.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, g.cfg.Args...), g.kind.String(), sourcePath, spec.OutFile)
	start := time.Now()
	err = g.run(ctx, payload, args)
	g.logger.Debug("toolchain finished", "duration", time.Since(start), "err", err)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		reason := "toolchain timed out"
		if errors.Is(parent.Err(), context.Canceled) {
			reason = "request canceled"
		}
		return &entity.GenerationError{Kind: g.kind, Reason: reason, Err: ctx.Err()}
	}

	g.logger.Warn("toolchain failed", "err", err, "output", g.outputTail())
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &entity.GenerationError{
			Kind:   g.kind,
			Reason: fmt.Sprintf("toolchain exited with status %d", exitErr.ExitCode()),
			Err:    err,
		}
	}
	return &entity.GenerationError{Kind: g.kind, Reason: "toolchain could not be started", Err: err}
}

func (g *CommandGenerator) run(ctx context.Context, stdin []byte, args []string) error {
	cmd := exec.Command(g.cfg.Command, args...)
	cmd.Dir = g.cfg.WorkDir
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &g.output
	cmd.Stderr = &g.output
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (g *CommandGenerator) outputTail() string {
	b := g.output.Bytes()
	if len(b) > outputTailSize {
		b = b[len(b)-outputTailSize:]
	}
	return string(b)
}
