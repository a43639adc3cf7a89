package compilecache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/observability"
	"github.com/platinummonkey/prism/pkg/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// syncBuffer lets concurrent loggers share one buffer
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// events returns the decoded log entries carrying the given event field
func (b *syncBuffer) events(t *testing.T, event string) []map[string]interface{} {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(b.buf.String()))
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if entry["event"] == event {
			out = append(out, entry)
		}
	}
	return out
}

func newFS(t *testing.T) *storage.FileSystemStorage {
	t.Helper()
	fs, err := storage.NewFileSystemStorage(t.TempDir())
	require.NoError(t, err)
	return fs
}

func writeFile(t *testing.T, s storage.Storage, key, content string) {
	t.Helper()
	require.NoError(t, s.Write(context.Background(), key, []byte(content)))
}

// upperCompiler upper-cases its source and declares the given sources
type upperCompiler struct {
	calls   atomic.Int32
	sources []string
	delay   time.Duration
}

func (c *upperCompiler) NeedsSource() bool {
	return true
}

func (c *upperCompiler) Compile(_ context.Context, source []byte) (*CompileResult, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return &CompileResult{
		Content:     bytes.ToUpper(source),
		ContentType: "application/javascript",
		Sources:     c.sources,
	}, nil
}

func parseFailure(_ context.Context, _ []byte) (*CompileResult, error) {
	return nil, &errdefs.ParseError{Resource: "src/app.js", Line: 3, Column: 7, Message: "unexpected token"}
}

func newTestLogger(level observability.LogLevel) (*observability.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return observability.NewLogger(level, buf), buf
}
