package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
	"github.com/vishalSecmark/tradewebx-sub002/internal/state"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
)

// memStore is an in-memory Store.
type memStore struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (s *memStore) GetValue(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memStore) SetValue(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.writes++
	return nil
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// fakeUploader records chunks and answers with fail.
type fakeUploader struct {
	mu       sync.Mutex
	chunks   []parser.ChunkData
	fail     func(parser.ChunkData) bool
	block    bool
	onUpload func(parser.ChunkData)
}

func (f *fakeUploader) Upload(ctx context.Context, chunk parser.ChunkData, meta api.UploadMeta) api.ChunkResult {
	f.mu.Lock()
	f.chunks = append(f.chunks, chunk)
	fail, block, hook := f.fail, f.block, f.onUpload
	f.mu.Unlock()

	if hook != nil {
		hook(chunk)
	}
	if block {
		<-ctx.Done()
		return api.ChunkResult{ChunkIndex: chunk.ChunkIndex, Error: ctx.Err().Error()}
	}
	if fail != nil && fail(chunk) {
		return api.ChunkResult{ChunkIndex: chunk.ChunkIndex, Error: "HTTP 500: boom", RetryCount: 3, Records: chunk.Len()}
	}
	return api.ChunkResult{ChunkIndex: chunk.ChunkIndex, Success: true, Records: chunk.Len()}
}

func (f *fakeUploader) indices() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.chunks))
	for i, c := range f.chunks {
		out[i] = c.ChunkIndex
	}
	return out
}

func (f *fakeUploader) set(fn func(*fakeUploader)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func csvFile(name string, rows int) parser.FileHandle {
	var b strings.Builder
	b.WriteString("Code,Name\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "%d,Name%d\n", i, i)
	}
	return parser.NewMemoryFile(name, []byte(b.String()))
}

func clientsFile() parser.FileHandle {
	return parser.NewMemoryFile("clients.csv", []byte("Code,Name\n1,Alice\n2,Bob\n3,Carol\n"))
}

var testTargets = []api.Target{
	{ID: "1", FileName: "clients", FileType: "CLIENT", Enabled: true},
	{ID: "2", FileName: "margins.csv", FileType: "MARGIN", Enabled: false},
}

func enabledTargets() []api.Target {
	return testTargets[:1]
}

func testConfig(chunkSize int) Config {
	cfg := DefaultConfig()
	cfg.Driver = upload.Config{ChunkSize: chunkSize}
	return cfg
}

func newTestManager(t *testing.T, store Store, up upload.Uploader, cfg Config, opts ...func(*Options)) *Manager {
	t.Helper()
	o := Options{Store: store, Uploader: up, Logger: logger.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	m, err := NewManager(context.Background(), cfg, o)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func newStateManager(t *testing.T) *state.Manager {
	t.Helper()
	sm, err := state.NewManager(state.DBConfig{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1, MaxIdleTime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	return sm
}

func waitIdle(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx), "queue did not go idle")
}

func itemByName(t *testing.T, m *Manager, name string) *FileQueueItem {
	t.Helper()
	for _, it := range m.Snapshot().Items {
		if it.FileName == name {
			return it
		}
	}
	t.Fatalf("no item named %s", name)
	return nil
}
