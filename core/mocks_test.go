package core

import (
	"context"
	"sync"
	"time"

	"github.com/anemone1693821/gpu-worker/inventory"
	"github.com/anemone1693821/gpu-worker/job"
	"github.com/anemone1693821/gpu-worker/remote"
	"github.com/anemone1693821/gpu-worker/settings"
)

// Mock implementations for testing

// MockRemote implements the Remote interface for testing
type MockRemote struct {
	mu sync.Mutex

	registerCalls int
	registerErr   func(call int) error
	lastCaps      remote.Capabilities

	pollCalls int
	pollQueue []pollReply
	pollErr   func(call int) error
	onPoll    func(call int)

	reports   []ReportCall
	reportErr func(call int) error

	fetchSync *settings.Sync
	fetchErr  error
}

type pollReply struct {
	job  *job.Job
	sync *settings.Sync
}

// ReportCall records one terminal report
type ReportCall struct {
	JobID   string
	Outcome job.Outcome
}

func NewMockRemote() *MockRemote {
	return &MockRemote{}
}

func (m *MockRemote) Register(ctx context.Context, caps remote.Capabilities) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registerCalls++
	m.lastCaps = caps
	if m.registerErr != nil {
		return m.registerErr(m.registerCalls)
	}
	return nil
}

func (m *MockRemote) PollJob(ctx context.Context) (*job.Job, *settings.Sync, error) {
	m.mu.Lock()
	m.pollCalls++
	call := m.pollCalls
	onPoll := m.onPoll

	var reply pollReply
	if len(m.pollQueue) > 0 {
		reply = m.pollQueue[0]
		m.pollQueue = m.pollQueue[1:]
	}
	pollErr := m.pollErr
	m.mu.Unlock()

	if onPoll != nil {
		onPoll(call)
	}
	if pollErr != nil {
		if err := pollErr(call); err != nil {
			return nil, nil, err
		}
	}
	return reply.job, reply.sync, nil
}

func (m *MockRemote) ReportResult(ctx context.Context, jobID string, outcome job.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reports = append(m.reports, ReportCall{JobID: jobID, Outcome: outcome})
	if m.reportErr != nil {
		return m.reportErr(len(m.reports))
	}
	return nil
}

func (m *MockRemote) FetchSettings(ctx context.Context) (*settings.Sync, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchSync, m.fetchErr
}

func (m *MockRemote) EnqueueJob(jb *job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollQueue = append(m.pollQueue, pollReply{job: jb})
}

func (m *MockRemote) EnqueueSync(sync *settings.Sync) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollQueue = append(m.pollQueue, pollReply{sync: sync})
}

func (m *MockRemote) Reports() []ReportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReportCall(nil), m.reports...)
}

func (m *MockRemote) PollCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollCalls
}

func (m *MockRemote) RegisterCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerCalls
}

func (m *MockRemote) LastCaps() remote.Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCaps
}

// MockBackend implements the Backend interface for testing
type MockBackend struct {
	mu           sync.Mutex
	generateFunc func(ctx context.Context, jb *job.Job) (*job.Result, error)
	calls        int
}

func NewMockBackend(fn func(ctx context.Context, jb *job.Job) (*job.Result, error)) *MockBackend {
	return &MockBackend{generateFunc: fn}
}

func (m *MockBackend) Generate(ctx context.Context, jb *job.Job) (*job.Result, error) {
	m.mu.Lock()
	m.calls++
	fn := m.generateFunc
	m.mu.Unlock()

	if fn == nil {
		return &job.Result{Image: "aW1n"}, nil
	}
	return fn(ctx, jb)
}

func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockInventory implements the Inventory interface for testing
type MockInventory struct {
	models  []inventory.Model
	scanErr error
}

func (m *MockInventory) Scan() ([]inventory.Model, error) {
	return m.models, m.scanErr
}

// MockStore implements the Store interface for testing
type MockStore struct {
	mu      sync.Mutex
	current settings.Settings
	loadErr error
	applied []*settings.Sync
	applyErr error
}

func NewMockStore(current settings.Settings) *MockStore {
	return &MockStore{current: current}
}

func (m *MockStore) Load() (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.loadErr
}

func (m *MockStore) Current() settings.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockStore) Apply(sync *settings.Sync) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sync == nil || sync.Settings == nil {
		return false, nil
	}
	if m.applyErr != nil {
		return false, m.applyErr
	}
	if sync.Version <= m.current.Version {
		return false, nil
	}

	m.applied = append(m.applied, sync)
	next := *sync.Settings
	next.Version = sync.Version
	next.WorkerID = m.current.WorkerID
	m.current = next
	return true, nil
}

func (m *MockStore) Applied() []*settings.Sync {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*settings.Sync(nil), m.applied...)
}

// fakeClock drives the loop without real sleeps; After fires immediately and
// records the requested durations.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	afters []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.afters = append(c.afters, d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Afters() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.afters...)
}
