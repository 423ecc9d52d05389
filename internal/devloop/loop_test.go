package devloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/stackctl/internal/build"
	"github.com/ternarybob/stackctl/internal/logger"
)

const listenURL = "http://127.0.0.1:3000/"

// fakeServer hands out fakeHandles and tracks how many are alive.
type fakeServer struct {
	mu       sync.Mutex
	calls    int
	alive    int
	maxAlive int
	fail     map[int]error
	killErr  error
	served   chan int
}

func newFakeServer() *fakeServer {
	return &fakeServer{fail: map[int]error{}, served: make(chan int, 16)}
}

func (s *fakeServer) ServeOnce(ctx context.Context) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	n := s.calls
	defer func() { s.served <- n }()

	if err := s.fail[n]; err != nil {
		return nil, err
	}

	s.alive++
	if s.alive > s.maxAlive {
		s.maxAlive = s.alive
	}
	return &fakeHandle{server: s}, nil
}

func (s *fakeServer) ListenURL() string {
	return listenURL
}

func (s *fakeServer) snapshot() (calls, alive, maxAlive int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.alive, s.maxAlive
}

type fakeHandle struct {
	server *fakeServer
	killed bool
}

func (h *fakeHandle) Kill() error {
	h.server.mu.Lock()
	defer h.server.mu.Unlock()

	if h.server.killErr != nil {
		return h.server.killErr
	}
	if !h.killed {
		h.killed = true
		h.server.alive--
	}
	return nil
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) Built(elapsed time.Duration, url string) { m.Called(elapsed, url) }
func (m *mockReporter) BuildFailed(err error) { m.Called(err) }
func (m *mockReporter) ReleaseStarted() { m.Called() }
func (m *mockReporter) ReleaseFinished(fe, bin string, elapsed time.Duration) {
	m.Called(fe, bin, elapsed)
}
func (m *mockReporter) Error(err error) { m.Called(err) }

type mockOpener struct {
	mock.Mock
}

func (m *mockOpener) Open(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func quietReporter() *mockReporter {
	r := new(mockReporter)
	r.On("Built", mock.Anything, mock.Anything).Maybe()
	r.On("BuildFailed", mock.Anything).Maybe()
	return r
}

func waitServed(t *testing.T, s *fakeServer, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-s.served:
			if got >= n {
				return
			}
		case <-deadline:
			t.Fatalf("iteration %d never ran", n)
		}
	}
}

type loopRun struct {
	triggers chan time.Time
	done     chan error
	cancel   context.CancelFunc
}

func startLoop(t *testing.T, server Server, reporter *mockReporter, op *mockOpener, open bool) *loopRun {
	t.Helper()
	if op == nil {
		op = new(mockOpener)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &loopRun{
		triggers: make(chan time.Time),
		done:     make(chan error, 1),
		cancel:   cancel,
	}
	t.Cleanup(cancel)

	l := New(server, r.triggers, reporter, op, open, logger.GetLogger())
	go func() { r.done <- l.Run(ctx) }()
	return r
}

func (r *loopRun) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
		return nil
	}
}

func TestLoop_OneRebuildPerTrigger(t *testing.T) {
	server := newFakeServer()
	run := startLoop(t, server, quietReporter(), nil, false)

	waitServed(t, server, 1)
	for i := 2; i <= 4; i++ {
		run.triggers <- time.Now()
		waitServed(t, server, i)
	}

	close(run.triggers)
	require.NoError(t, run.wait(t))

	calls, alive, maxAlive := server.snapshot()
	assert.Equal(t, 4, calls)
	assert.Equal(t, 0, alive, "server must be stopped when the loop exits")
	assert.Equal(t, 1, maxAlive, "never more than one live server")
}

func TestLoop_StaleTriggerIgnored(t *testing.T) {
	server := newFakeServer()
	run := startLoop(t, server, quietReporter(), nil, false)

	before := time.Now().Add(-time.Minute)
	waitServed(t, server, 1)

	run.triggers <- before
	run.triggers <- before

	close(run.triggers)
	require.NoError(t, run.wait(t))

	calls, _, _ := server.snapshot()
	assert.Equal(t, 1, calls)
}

func TestLoop_BuildFailureKeepsWatching(t *testing.T) {
	server := newFakeServer()
	server.fail[1] = build.ErrBuildFailed

	reporter := new(mockReporter)
	reporter.On("BuildFailed", build.ErrBuildFailed).Once()
	reporter.On("Built", mock.Anything, listenURL).Once()

	run := startLoop(t, server, reporter, nil, false)

	waitServed(t, server, 1)
	run.triggers <- time.Now()
	waitServed(t, server, 2)

	close(run.triggers)
	require.NoError(t, run.wait(t))

	reporter.AssertExpectations(t)
	_, alive, _ := server.snapshot()
	assert.Equal(t, 0, alive)
}

func TestLoop_StreamEndWithoutServer(t *testing.T) {
	server := newFakeServer()
	server.fail[1] = errors.New("boom")

	run := startLoop(t, server, quietReporter(), nil, false)
	waitServed(t, server, 1)

	close(run.triggers)
	assert.NoError(t, run.wait(t))
}

func TestLoop_KillFailureIsFatal(t *testing.T) {
	server := newFakeServer()
	run := startLoop(t, server, quietReporter(), nil, false)

	waitServed(t, server, 1)
	server.mu.Lock()
	server.killErr = errors.New("operation not permitted")
	server.mu.Unlock()

	run.triggers <- time.Now()

	err := run.wait(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop server")

	calls, _, _ := server.snapshot()
	assert.Equal(t, 1, calls, "no new server may start while the old one is alive")
}

func TestLoop_CancelStopsServer(t *testing.T) {
	server := newFakeServer()
	run := startLoop(t, server, quietReporter(), nil, false)

	waitServed(t, server, 1)
	run.cancel()

	require.NoError(t, run.wait(t))
	_, alive, _ := server.snapshot()
	assert.Equal(t, 0, alive)
}

func TestLoop_OpensBrowserOnce(t *testing.T) {
	server := newFakeServer()
	op := new(mockOpener)
	op.On("Open", mock.Anything, listenURL).Return(nil).Once()

	run := startLoop(t, server, quietReporter(), op, true)

	waitServed(t, server, 1)
	run.triggers <- time.Now()
	waitServed(t, server, 2)
	run.triggers <- time.Now()
	waitServed(t, server, 3)

	close(run.triggers)
	require.NoError(t, run.wait(t))

	op.AssertExpectations(t)
	op.AssertNumberOfCalls(t, "Open", 1)
}

func TestLoop_OpensBrowserOnFirstSuccessfulBuild(t *testing.T) {
	server := newFakeServer()
	server.fail[1] = build.ErrBuildFailed
	op := new(mockOpener)
	op.On("Open", mock.Anything, listenURL).Return(nil).Once()

	run := startLoop(t, server, quietReporter(), op, true)

	waitServed(t, server, 1)
	// Give the loop time to act on the failed build before the next trigger.
	time.Sleep(50 * time.Millisecond)
	op.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)

	run.triggers <- time.Now()
	waitServed(t, server, 2)
	run.triggers <- time.Now()
	waitServed(t, server, 3)

	close(run.triggers)
	require.NoError(t, run.wait(t))
	op.AssertNumberOfCalls(t, "Open", 1)
}

func TestLoop_OpenFailureKeepsLooping(t *testing.T) {
	server := newFakeServer()
	op := new(mockOpener)
	op.On("Open", mock.Anything, listenURL).Return(errors.New("no opener")).Once()

	run := startLoop(t, server, quietReporter(), op, true)
	waitServed(t, server, 1)
	run.triggers <- time.Now()
	waitServed(t, server, 2)

	close(run.triggers)
	require.NoError(t, run.wait(t))
	op.AssertNumberOfCalls(t, "Open", 1)
}

func TestLoop_NoBrowserWithoutOpen(t *testing.T) {
	server := newFakeServer()
	op := new(mockOpener)

	run := startLoop(t, server, quietReporter(), op, false)
	waitServed(t, server, 1)

	close(run.triggers)
	require.NoError(t, run.wait(t))
	op.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
}

func TestLoop_ReportsBuiltWithListenURL(t *testing.T) {
	server := newFakeServer()
	reporter := new(mockReporter)
	reporter.On("Built", mock.AnythingOfType("time.Duration"), listenURL).Once()

	run := startLoop(t, server, reporter, nil, false)
	waitServed(t, server, 1)

	close(run.triggers)
	require.NoError(t, run.wait(t))
	reporter.AssertExpectations(t)
}
