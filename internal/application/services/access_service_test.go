package services_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	impl "github.com/ueckoken/kagi/internal/application/services"
	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/domain/door"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/test/mocks"
)

type loopFixture struct {
	svc   *impl.AccessService
	ctrl  *impl.DoorController
	act   *mocks.ActuatorMock
	ind   *mocks.IndicatorMock
	auth  *mocks.CardVerifierMock
	cache *mocks.FakeCache
	audit *mocks.AuditServiceMock
}

func newLoop(reader *mocks.ScriptedReader, authority *mocks.CardVerifierMock) *loopFixture {
	f := &loopFixture{
		act:   &mocks.ActuatorMock{},
		ind:   &mocks.IndicatorMock{},
		auth:  authority,
		cache: mocks.NewFakeCache(),
		audit: &mocks.AuditServiceMock{},
	}
	f.ctrl = impl.NewDoorController(f.act, f.ind, impl.DoorControllerConfig{Initial: door.Locked, Sleep: mocks.NoSleep}, nil, nil)
	verifier := impl.NewCardVerifier(authority, f.cache, impl.VerifierConfig{
		CacheTTL:         impl.DefaultCacheTTL,
		LookupTimeout:    impl.DefaultCacheLookupTimeout,
		AuthorityTimeout: time.Second,
	}, nil, nil)
	f.svc = impl.NewAccessService(impl.AccessServiceDeps{
		Reader:     reader,
		Verifier:   verifier,
		Controller: f.ctrl,
		Audit:      f.audit,
		HashCard:   func(id card.IDm) string { return "h:" + id.String() },
	}, nil)
	return f
}

// runUntilDrained runs the loop until the reader has nothing left, then stops it.
func runUntilDrained(t *testing.T, svc *impl.AccessService, reader *mocks.ScriptedReader, presentations int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return reader.Remaining() == 0 && svc.Handled() == uint64(presentations)
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestAccessService_RegisteredCardUnlocks(t *testing.T) {
	reader := mocks.NewScriptedReader(card.ParseIDm("345678"))
	f := newLoop(reader, mocks.StaticVerifier(verified))

	runUntilDrained(t, f.svc, reader, 1)

	require.Equal(t, door.Unlocked, f.ctrl.State())
	require.Equal(t, []string{"unlock"}, f.act.Moves)
	require.Equal(t, []door.Signal{door.SignalGrant}, f.ind.Signals)

	require.Len(t, f.audit.Recorded, 1)
	ev := f.audit.Recorded[0]
	require.True(t, ev.Granted)
	require.Equal(t, "h:345678", ev.CardHash)
	require.Equal(t, "locked", ev.StateBefore)
	require.Equal(t, "unlocked", ev.StateAfter)
	require.NotEmpty(t, ev.TraceID)
}

func TestAccessService_SameCardTwiceUsesCacheAndToggles(t *testing.T) {
	id := card.ParseIDm("456789")
	reader := mocks.NewScriptedReader(id, id)
	f := newLoop(reader, mocks.StaticVerifier(verified))

	runUntilDrained(t, f.svc, reader, 2)

	require.Equal(t, 1, f.auth.Calls())
	require.Equal(t, door.Locked, f.ctrl.State())
	require.Equal(t, []string{"unlock", "lock"}, f.act.Moves)
	require.Equal(t, "cache", f.audit.Recorded[1].Source)
}

func TestAccessService_DifferentCardsToggleGlobally(t *testing.T) {
	reader := mocks.NewScriptedReader(card.IDm{0xaa}, card.IDm{0xbb})
	f := newLoop(reader, mocks.StaticVerifier(verified))

	runUntilDrained(t, f.svc, reader, 2)

	require.Equal(t, []string{"unlock", "lock"}, f.act.Moves)
	require.Equal(t, door.Locked, f.ctrl.State())
}

func TestAccessService_UnregisteredCardDenied(t *testing.T) {
	reader := mocks.NewScriptedReader(card.IDm{0x01}, card.IDm{})
	f := newLoop(reader, mocks.StaticVerifier(verification.NewDenied("not_found")))

	runUntilDrained(t, f.svc, reader, 2)

	require.Empty(t, f.act.Moves)
	require.Equal(t, 2, f.ind.Count(door.SignalDeny))
	require.Equal(t, 2, f.auth.Calls(), "empty identifiers are still verified")
	require.False(t, f.audit.Recorded[0].Granted)
	require.Equal(t, "denied", f.audit.Recorded[0].Status)
}

func TestAccessService_AuthorityPanicDeniesAndLoopContinues(t *testing.T) {
	var calls atomic.Int32
	authority := &mocks.CardVerifierMock{VerifyFn: func(ctx context.Context, id card.IDm) verification.Result {
		if calls.Add(1) == 1 {
			panic("driver bug")
		}
		return verified
	}}
	reader := mocks.NewScriptedReader(card.IDm{0x01}, card.IDm{0x02})
	f := newLoop(reader, authority)

	runUntilDrained(t, f.svc, reader, 2)

	require.Equal(t, []string{"unlock"}, f.act.Moves)
	require.Equal(t, []door.Signal{door.SignalDeny, door.SignalGrant}, f.ind.Signals)
	require.Equal(t, "authority_fault", f.audit.Recorded[0].Status)
	require.Equal(t, "panic", f.audit.Recorded[0].Reason)
	require.True(t, f.svc.Alive())
}

func TestAccessService_PanicBeforeControllerShowsDeny(t *testing.T) {
	first := true
	verifier := &mocks.CardVerifierMock{VerifyFn: func(ctx context.Context, id card.IDm) verification.Result {
		if first {
			first = false
			panic("unexpected nil")
		}
		return verified
	}}
	reader := mocks.NewScriptedReader(card.IDm{0x01}, card.IDm{0x02})
	act := &mocks.ActuatorMock{}
	ind := &mocks.IndicatorMock{}
	ctrl := impl.NewDoorController(act, ind, impl.DoorControllerConfig{Sleep: mocks.NoSleep}, nil, nil)
	svc := impl.NewAccessService(impl.AccessServiceDeps{
		Reader:     reader,
		Verifier:   verifier,
		Controller: ctrl,
	}, nil)

	runUntilDrained(t, svc, reader, 2)

	require.Equal(t, []door.Signal{door.SignalDeny, door.SignalGrant}, ind.Signals)
	require.Equal(t, []string{"unlock"}, act.Moves)
	require.Equal(t, door.Unlocked, ctrl.State())
}

func TestAccessService_PanicAfterActuationDoesNotSignalAgain(t *testing.T) {
	reader := mocks.NewScriptedReader(card.IDm{0x01})
	f := newLoop(reader, mocks.StaticVerifier(verified))
	f.svc = impl.NewAccessService(impl.AccessServiceDeps{
		Reader:     reader,
		Verifier:   mocks.StaticVerifier(verified),
		Controller: f.ctrl,
		Audit:      f.audit,
		HashCard:   func(card.IDm) string { panic("hash key gone") },
	}, nil)

	runUntilDrained(t, f.svc, reader, 1)

	require.Equal(t, []door.Signal{door.SignalGrant}, f.ind.Signals)
	require.Equal(t, []string{"unlock"}, f.act.Moves)
}

func TestAccessService_ActuationErrorIsAudited(t *testing.T) {
	reader := mocks.NewScriptedReader(card.IDm{0x01})
	f := newLoop(reader, mocks.StaticVerifier(verified))
	f.act.UnlockFn = func(ctx context.Context) error { return errors.New("servo stalled") }

	runUntilDrained(t, f.svc, reader, 1)

	require.Equal(t, door.Locked, f.ctrl.State())
	require.Len(t, f.audit.Recorded, 1)
	require.EqualError(t, f.audit.Recorded[0].ActuationErr, "door unlock: servo stalled")
	require.Equal(t, "locked", f.audit.Recorded[0].StateAfter)
}

func TestAccessService_AliveDetectsStall(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	entered := make(chan struct{})
	release := make(chan struct{})
	authority := &mocks.CardVerifierMock{VerifyFn: func(ctx context.Context, id card.IDm) verification.Result {
		close(entered)
		<-release
		return denied
	}}
	ctrl := impl.NewDoorController(&mocks.ActuatorMock{}, &mocks.IndicatorMock{}, impl.DoorControllerConfig{Sleep: mocks.NoSleep}, nil, nil)
	svc := impl.NewAccessService(impl.AccessServiceDeps{
		Reader:         mocks.NewScriptedReader(),
		Verifier:       authority,
		Controller:     ctrl,
		StallThreshold: time.Minute,
		Now:            clock,
	}, nil)

	require.True(t, svc.Alive())

	done := make(chan struct{})
	go func() {
		svc.HandlePresentation(context.Background(), card.IDm{0x01})
		close(done)
	}()
	<-entered
	require.True(t, svc.Alive())

	now = now.Add(2 * time.Minute)
	require.False(t, svc.Alive())

	close(release)
	<-done
	require.True(t, svc.Alive())
}
