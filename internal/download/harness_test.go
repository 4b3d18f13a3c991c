package download_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/catalog"
	"github.com/hbomb79/Trove/internal/download"
	mocks "github.com/hbomb79/Trove/internal/download/mocks"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/metrics"
	"github.com/hbomb79/Trove/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

const testChunkSize = 4096

func testConfig(t *testing.T) download.Config {
	dir := t.TempDir()
	return download.Config{
		DownloadDir:           filepath.Join(dir, "downloads"),
		PartsDir:              filepath.Join(dir, "parts"),
		ChunkWorkers:          4,
		DomainConcurrency:     2,
		MultipartThreshold:    1024,
		ChunkSize:             testChunkSize,
		MinChunkSize:          1024,
		MaxChunksPerTransfer:  16,
		ProbeAttempts:         1,
		ProbeTimeout:          5 * time.Second,
		ChunkAttempts:         2,
		MaxChunkClaims:        3,
		ChunkAttemptTimeout:   10 * time.Second,
		RetryBackoff:          time.Millisecond,
		RetryMaxBackoff:       5 * time.Millisecond,
		ChunkLease:            2 * time.Second,
		LeaseSweepInterval:    50 * time.Millisecond,
		ProgressFlushBytes:    1024,
		ProgressFlushInterval: 10 * time.Millisecond,
	}
}

type harness struct {
	store      *download.MemoryStore
	files      *catalog.MemoryStore
	classifier *mocks.MockClassifier
	service    *download.Service
}

func newHarness(t *testing.T, config download.Config, store *download.MemoryStore, files *catalog.MemoryStore) *harness {
	classifier := mocks.NewMockClassifier(t)
	service, err := download.New(config, store, download.NewHTTPOrigin(nil), files, classifier, event.New(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	return &harness{store: store, files: files, classifier: classifier, service: service}
}

// start runs the service in the background. The returned function stops
// the service and waits for it to exit; it is also registered as cleanup.
func (h *harness) start(t *testing.T) func() {
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.service.Run(ctx))
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
	t.Cleanup(stop)

	return stop
}

func (h *harness) newFile(t *testing.T) *catalog.File {
	file := catalog.NewFile()
	require.NoError(t, h.files.CreateFile(context.Background(), file))
	return file
}

func (h *harness) awaitStatus(t *testing.T, id uuid.UUID, status download.TransferStatus) {
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		transfer, err := h.store.GetTransfer(context.Background(), id)
		if assert.NoError(c, err) {
			assert.Equal(c, status, transfer.Status, "transfer %s", id)
		}
	}, 10*time.Second, 20*time.Millisecond)
}

func randomContent(t *testing.T, size int) []byte {
	content := make([]byte, size)
	_, err := rand.Read(content)
	require.NoError(t, err)
	return content
}

// testOrigin serves a fixed resource, honouring byte ranges, and records
// the concurrency and Range headers of the GET requests it receives.
type testOrigin struct {
	content []byte
	server  *httptest.Server
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mutex     sync.Mutex
	ranges    []string
	intercept func(w http.ResponseWriter, r *http.Request, call int) bool
}

func newTestOrigin(t *testing.T, content []byte) *testOrigin {
	origin := &testOrigin{content: content}
	origin.server = httptest.NewServer(http.HandlerFunc(origin.serve))
	t.Cleanup(origin.server.Close)

	return origin
}

func (origin *testOrigin) url(path string) string { return origin.server.URL + path }

// setIntercept installs a handler which runs before the default for every
// GET. Returning true indicates the request was fully handled.
func (origin *testOrigin) setIntercept(f func(w http.ResponseWriter, r *http.Request, call int) bool) {
	origin.mutex.Lock()
	defer origin.mutex.Unlock()
	origin.intercept = f
}

func (origin *testOrigin) requestedRanges() []string {
	origin.mutex.Lock()
	defer origin.mutex.Unlock()
	return append([]string(nil), origin.ranges...)
}

func (origin *testOrigin) resetRanges() {
	origin.mutex.Lock()
	defer origin.mutex.Unlock()
	origin.ranges = nil
}

func (origin *testOrigin) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		origin.mutex.Lock()
		origin.ranges = append(origin.ranges, r.Header.Get("Range"))
		call := len(origin.ranges)
		intercept := origin.intercept
		origin.mutex.Unlock()

		current := origin.inFlight.Add(1)
		defer origin.inFlight.Add(-1)
		for {
			prev := origin.maxInFlight.Load()
			if current <= prev || origin.maxInFlight.CompareAndSwap(prev, current) {
				break
			}
		}

		if origin.delay > 0 {
			time.Sleep(origin.delay)
		}
		if intercept != nil && intercept(w, r, call) {
			return
		}
	}

	http.ServeContent(w, r, "resource", time.Time{}, bytes.NewReader(origin.content))
}

// requestedRange parses a 'bytes=start-end' header. End is -1 if omitted.
func requestedRange(r *http.Request) (int, int) {
	rng := strings.TrimPrefix(r.Header.Get("Range"), "bytes=")
	startStr, endStr, _ := strings.Cut(rng, "-")
	start, _ := strconv.Atoi(startStr)
	end, err := strconv.Atoi(endStr)
	if err != nil {
		end = -1
	}

	return start, end
}

// writePartial responds to a ranged request with the headers for the full
// range but only the first n bytes of its body.
func writePartial(w http.ResponseWriter, content []byte, start, end, n int) {
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
	w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(content[start : start+n])
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
