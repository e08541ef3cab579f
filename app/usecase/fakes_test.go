package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"evador/internal/domain/entity"
	"evador/internal/domain/repository"
	"evador/internal/infrastructure/store/filesystem"
	"evador/internal/infrastructure/validator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDetector struct {
	info entity.SourceInfo
	err  error
}

func (d *fakeDetector) Detect(path string) (entity.SourceInfo, error) {
	if d.err != nil {
		return entity.SourceInfo{}, d.err
	}
	if _, err := os.Stat(path); err != nil {
		return entity.SourceInfo{}, err
	}
	return d.info, nil
}

type generateFn func(ctx context.Context, sourcePath string, spec entity.GenerationSpec) error

type fakeGenerator struct {
	fn generateFn
}

func (g *fakeGenerator) Generate(ctx context.Context, sourcePath string, spec entity.GenerationSpec) error {
	return g.fn(ctx, sourcePath, spec)
}

type fakeFactory struct {
	mu    sync.Mutex
	fn    generateFn
	built int
}

func (f *fakeFactory) NewGenerator(kind entity.OutputKind) (repository.ArtifactGenerator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built++
	return &fakeGenerator{fn: f.fn}, nil
}

// echoSource writes "<process>:<source bytes>" to the output file.
func echoSource(ctx context.Context, sourcePath string, spec entity.GenerationSpec) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}
	return os.WriteFile(spec.OutFile, append([]byte(spec.Process+":"), data...), 0o600)
}

type fakeChecker struct {
	mu      sync.Mutex
	report  entity.DetectionReport
	err     error
	scanned []string
}

func (c *fakeChecker) Validate(ctx context.Context, path string) (entity.DetectionReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanned = append(c.scanned, filepath.Base(path))
	if c.err != nil {
		return entity.DetectionReport{}, c.err
	}
	return c.report, nil
}

type memRecords struct {
	mu      sync.Mutex
	records []*entity.GenerationRecord
	saveErr error
}

func (m *memRecords) Save(ctx context.Context, rec *entity.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecords) ListRecent(ctx context.Context, limit int) ([]*entity.GenerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.GenerationRecord, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *memRecords) CountByStatus(ctx context.Context, status entity.RecordStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*entity.GenerationRecord
}

func (p *fakePublisher) Publish(rec *entity.GenerationRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, rec)
}

type fakeCatalog []string

func (c fakeCatalog) List() []string { return c }

var errBoom = errors.New("boom")

var exeSource = entity.SourceInfo{Extension: "exe", Format: entity.FormatNativeBinary}

func newStore(t *testing.T) *filesystem.UploadStore {
	t.Helper()
	store, err := filesystem.NewUploadStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func openWorkspace(t *testing.T, store *filesystem.UploadStore, name, content string) *filesystem.Workspace {
	t.Helper()
	ws, err := store.Open(context.Background(), name, strings.NewReader(content))
	require.NoError(t, err)
	return ws
}

func dirEntries(t *testing.T, store *filesystem.UploadStore) []string {
	t.Helper()
	entries, err := os.ReadDir(store.BasePath())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func params(kv ...string) url.Values {
	v := url.Values{
		"transformer": {"donut"},
		"process":     {"explorer.exe"},
	}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

type serviceDeps struct {
	detector *fakeDetector
	factory  *fakeFactory
	checker  *fakeChecker
	records  *memRecords
	events   *fakePublisher
}

func newService(deps serviceDeps) *EvadorService {
	logger := discardLogger()
	dispatcher := NewDispatcher(validator.NewRequestValidator(), deps.detector, deps.factory)
	lifecycle := NewLifecycleManager(deps.checker, logger)

	var records repository.RecordRepository
	if deps.records != nil {
		records = deps.records
	}
	var events repository.EventPublisher
	if deps.events != nil {
		events = deps.events
	}
	return NewEvadorService(dispatcher, lifecycle, fakeCatalog{"delay", "find_process"}, records, events, logger)
}

func defaultDeps() serviceDeps {
	return serviceDeps{
		detector: &fakeDetector{info: exeSource},
		factory:  &fakeFactory{fn: echoSource},
		checker:  &fakeChecker{report: entity.DetectionReport{Engine: "test"}},
		records:  &memRecords{},
		events:   &fakePublisher{},
	}
}
