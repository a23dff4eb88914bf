package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ueckoken/kagi/internal/core/domain/audit"
	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/domain/door"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/internal/core/ports"
)

// CardVerifierMock is a lightweight mock for CardVerifier that counts calls
type CardVerifierMock struct {
	VerifyFn func(ctx context.Context, id card.IDm) verification.Result

	mu    sync.Mutex
	calls []string
}

func (m *CardVerifierMock) Verify(ctx context.Context, id card.IDm) verification.Result {
	m.mu.Lock()
	m.calls = append(m.calls, id.String())
	m.mu.Unlock()
	if m.VerifyFn != nil {
		return m.VerifyFn(ctx, id)
	}
	return verification.NewDenied("not_found")
}

// Calls returns the number of Verify invocations.
func (m *CardVerifierMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// StaticVerifier answers every card the same way.
func StaticVerifier(res verification.Result) *CardVerifierMock {
	return &CardVerifierMock{VerifyFn: func(ctx context.Context, id card.IDm) verification.Result { return res }}
}

// FakeCache is an in-memory ports.Cache with a controllable clock.
type FakeCache struct {
	GetErr error
	SetErr error
	// Hang makes Get and Set block until their context ends, like a blackholed store.
	Hang bool

	mu      sync.Mutex
	now     time.Time
	entries map[string]fakeEntry
	sets    int
}

type fakeEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewFakeCache() *FakeCache {
	return &FakeCache{now: time.Unix(1_700_000_000, 0), entries: map[string]fakeEntry{}}
}

// Advance moves the cache clock forward.
func (c *FakeCache) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.Hang {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

func (c *FakeCache) lookup(key string) ([]byte, bool, error) {
	if c.GetErr != nil {
		return nil, false, c.GetErr
	}
	e, ok := c.entries[key]
	if !ok || !c.now.Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *FakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	if c.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	if ttl <= 0 {
		return errors.New("fake cache: ttl must be positive")
	}
	c.entries[key] = fakeEntry{value: value, expiresAt: c.now.Add(ttl)}
	return nil
}

func (c *FakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Sets is the number of Set calls, including failed ones.
func (c *FakeCache) Sets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// Has reports whether key holds a live entry.
func (c *FakeCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok, _ := c.lookup(key)
	return ok
}

// ActuatorMock records actuator calls
type ActuatorMock struct {
	UnlockFn func(ctx context.Context) error
	LockFn   func(ctx context.Context) error
	ResetFn  func(ctx context.Context) error

	mu    sync.Mutex
	Moves []string
}

func (m *ActuatorMock) record(move string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Moves = append(m.Moves, move)
}

func (m *ActuatorMock) Unlock(ctx context.Context) error {
	m.record("unlock")
	if m.UnlockFn != nil {
		return m.UnlockFn(ctx)
	}
	return nil
}
func (m *ActuatorMock) Lock(ctx context.Context) error {
	m.record("lock")
	if m.LockFn != nil {
		return m.LockFn(ctx)
	}
	return nil
}
func (m *ActuatorMock) Reset(ctx context.Context) error {
	m.record("reset")
	if m.ResetFn != nil {
		return m.ResetFn(ctx)
	}
	return nil
}

// Count returns how often move was requested.
func (m *ActuatorMock) Count(move string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mv := range m.Moves {
		if mv == move {
			n++
		}
	}
	return n
}

// IndicatorMock records signals
type IndicatorMock struct {
	SignalFn func(ctx context.Context, s door.Signal) error

	mu      sync.Mutex
	Signals []door.Signal
}

func (m *IndicatorMock) Signal(ctx context.Context, s door.Signal) error {
	m.mu.Lock()
	m.Signals = append(m.Signals, s)
	m.mu.Unlock()
	if m.SignalFn != nil {
		return m.SignalFn(ctx, s)
	}
	return nil
}

// Count returns how often s was shown.
func (m *IndicatorMock) Count(s door.Signal) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.Signals {
		if got == s {
			n++
		}
	}
	return n
}

// ScriptedReader returns the given cards in order, then blocks until ctx ends.
type ScriptedReader struct {
	mu    sync.Mutex
	cards []card.IDm
}

func NewScriptedReader(cards ...card.IDm) *ScriptedReader {
	return &ScriptedReader{cards: cards}
}

func (r *ScriptedReader) Read(ctx context.Context) (card.IDm, error) {
	r.mu.Lock()
	if len(r.cards) > 0 {
		id := r.cards[0]
		r.cards = r.cards[1:]
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

// Remaining is the number of cards not yet read.
func (r *ScriptedReader) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cards)
}

// AccessEventRepositoryMock is a mock for AccessEventRepository
type AccessEventRepositoryMock struct {
	CreateFn func(ctx context.Context, ev *audit.AccessEvent) error
	ListFn   func(ctx context.Context, f *audit.AccessEventFilter) ([]*audit.AccessEvent, error)
	CountFn  func(ctx context.Context, f *audit.AccessEventFilter) (int, error)
}

func (m *AccessEventRepositoryMock) Create(ctx context.Context, ev *audit.AccessEvent) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, ev)
	}
	return nil
}
func (m *AccessEventRepositoryMock) List(ctx context.Context, f *audit.AccessEventFilter) ([]*audit.AccessEvent, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, f)
	}
	return nil, nil
}
func (m *AccessEventRepositoryMock) Count(ctx context.Context, f *audit.AccessEventFilter) (int, error) {
	if m.CountFn != nil {
		return m.CountFn(ctx, f)
	}
	return 0, nil
}

// AuditServiceMock is a mock for AuditService
type AuditServiceMock struct {
	RecordAccessFn    func(ctx context.Context, req *audit.RecordAccessRequest) error
	GetAccessEventsFn func(ctx context.Context, f *audit.AccessEventFilter) ([]*audit.AccessEvent, int, error)

	mu       sync.Mutex
	Recorded []*audit.RecordAccessRequest
}

func (m *AuditServiceMock) RecordAccess(ctx context.Context, req *audit.RecordAccessRequest) error {
	m.mu.Lock()
	m.Recorded = append(m.Recorded, req)
	m.mu.Unlock()
	if m.RecordAccessFn != nil {
		return m.RecordAccessFn(ctx, req)
	}
	return nil
}
func (m *AuditServiceMock) GetAccessEvents(ctx context.Context, f *audit.AccessEventFilter) ([]*audit.AccessEvent, int, error) {
	if m.GetAccessEventsFn != nil {
		return m.GetAccessEventsFn(ctx, f)
	}
	return []*audit.AccessEvent{}, 0, nil
}

// DoorControllerMock is a mock for DoorController
type DoorControllerMock struct {
	HandleFn   func(ctx context.Context, res verification.Result) (door.State, error)
	SnapshotFn func() ports.DoorSnapshot
}

func (m *DoorControllerMock) Handle(ctx context.Context, res verification.Result) (door.State, error) {
	if m.HandleFn != nil {
		return m.HandleFn(ctx, res)
	}
	return door.Locked, nil
}
func (m *DoorControllerMock) Reset(ctx context.Context) error { return nil }
func (m *DoorControllerMock) Snapshot() ports.DoorSnapshot {
	if m.SnapshotFn != nil {
		return m.SnapshotFn()
	}
	return ports.DoorSnapshot{State: door.Locked, StateName: door.Locked.String()}
}

// HealthCheckerMock is a mock for HealthChecker
type HealthCheckerMock struct {
	NameValue string
	CheckFn   func(ctx context.Context) error
}

func (m *HealthCheckerMock) Name() string { return m.NameValue }
func (m *HealthCheckerMock) Check(ctx context.Context) error {
	if m.CheckFn != nil {
		return m.CheckFn(ctx)
	}
	return nil
}

// NoSleep is a SleepFunc that returns immediately.
func NoSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
