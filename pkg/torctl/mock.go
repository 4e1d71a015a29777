package torctl

import (
	"context"
	"fmt"
	"sync"

	"github.com/iowaguy/ting-go/pkg/tingerr"
	"github.com/iowaguy/ting-go/pkg/tingtype"
)

// MockController is an in-memory Controller used by tests that exercise
// the build/attach/close dance without a running Tor daemon. NewCircuit
// hands out synthetic, strictly increasing circuit ids.
type MockController struct {
	mu sync.Mutex

	nextCircuitID int
	open          map[string]bool

	// FailBuildsRemaining, when > 0, makes the next that many calls to
	// NewCircuit fail with CircuitBuildFailed before one succeeds.
	FailBuildsRemaining int

	// AlwaysFailBuild makes every call to NewCircuit fail.
	AlwaysFailBuild bool

	listeners map[ListenerHandle]StreamListener
	nextID    ListenerHandle

	SetConfCalls map[string]string

	closedStreams []string
}

// NewMockController constructs an empty MockController.
func NewMockController() *MockController {
	return &MockController{
		open:         make(map[string]bool),
		listeners:    make(map[ListenerHandle]StreamListener),
		SetConfCalls: make(map[string]string),
	}
}

func (m *MockController) Authenticate(ctx context.Context) error { return nil }

func (m *MockController) SetConf(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetConfCalls[key] = value
	return nil
}

func (m *MockController) NewCircuit(ctx context.Context, relays []tingtype.Fingerprint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AlwaysFailBuild {
		return "", tingerr.CircuitBuildFailedError("mock: build always fails", nil)
	}
	if m.FailBuildsRemaining > 0 {
		m.FailBuildsRemaining--
		return "", tingerr.CircuitBuildFailedError("mock: simulated build failure", nil)
	}

	m.nextCircuitID++
	id := fmt.Sprintf("%d", m.nextCircuitID)
	m.open[id] = true
	return id, nil
}

func (m *MockController) CloseCircuit(ctx context.Context, circuitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, circuitID)
	return nil
}

func (m *MockController) AttachStream(ctx context.Context, streamID, circuitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open[circuitID] {
		return tingerr.AttachFailedError("mock: unknown circuit "+circuitID, nil)
	}
	return nil
}

func (m *MockController) CloseStream(ctx context.Context, streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closedStreams = append(m.closedStreams, streamID)
	return nil
}

// ClosedStreams returns the ids CloseStream has been called with, in
// call order, for assertions that a failed attach cleans up its stream.
func (m *MockController) ClosedStreams() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closedStreams...)
}

func (m *MockController) AddStreamListener(l StreamListener) ListenerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	h := m.nextID
	m.listeners[h] = l
	return h
}

func (m *MockController) RemoveStreamListener(h ListenerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, h)
}

func (m *MockController) Close() error { return nil }

// OpenCircuits returns the circuit ids currently considered open, for
// assertions that nothing leaks past a circuit's scope.
func (m *MockController) OpenCircuits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	return ids
}

// Emit delivers a synthetic stream event to every registered listener,
// used to drive the attach state machine from a test.
func (m *MockController) Emit(ev StreamEvent) {
	m.mu.Lock()
	listeners := make([]StreamListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}
