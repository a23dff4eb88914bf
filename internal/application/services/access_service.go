package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/domain/audit"
	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/internal/core/ports"
)

// DefaultStallThreshold bounds how long a single verify+actuate iteration may run
// before Alive reports false.
const DefaultStallThreshold = 30 * time.Second

type AccessServiceDeps struct {
	Reader     ports.CardReader
	Verifier   ports.CardVerifier
	Controller ports.DoorController
	Audit      ports.AuditService
	Metrics    ports.AccessMetrics
	// HashCard turns an IDm into the value stored in the audit log.
	HashCard       func(card.IDm) string
	StallThreshold time.Duration
	Now            func() time.Time
}

// AccessService is the door loop: read, verify, actuate, repeat. It runs on one
// goroutine so at most one authority request is ever in flight.
type AccessService struct {
	deps   AccessServiceDeps
	logger *logrus.Logger

	// unix nanos when the current iteration started; 0 while waiting for a card
	busySince atomic.Int64
	handled   atomic.Uint64
}

func NewAccessService(deps AccessServiceDeps, logger *logrus.Logger) *AccessService {
	if deps.StallThreshold <= 0 {
		deps.StallThreshold = DefaultStallThreshold
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &AccessService{deps: deps, logger: logger}
}

// Run blocks until ctx is cancelled. Failures inside one presentation never end the loop.
func (s *AccessService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("door loop started")
	}
	for {
		id, err := s.deps.Reader.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				if s.logger != nil {
					s.logger.Info("door loop stopped")
				}
				return nil
			}
			// Readers only return errors on cancellation; anything else is a bug worth seeing.
			if s.logger != nil {
				s.logger.WithError(err).Error("card reader returned an error")
			}
			s.observeIteration("read_error")
			if err := SleepContext(ctx, time.Second); err != nil {
				return nil
			}
			continue
		}
		s.HandlePresentation(ctx, id)
	}
}

// HandlePresentation runs one verify+actuate cycle for a sensed card.
func (s *AccessService) HandlePresentation(ctx context.Context, id card.IDm) {
	traceID := xid.New().String()
	s.busySince.Store(s.deps.Now().UnixNano())
	defer s.busySince.Store(0)
	defer s.handled.Add(1)

	doorHandled := false
	defer func() {
		if r := recover(); r != nil {
			s.observeIteration("panic")
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"trace_id": traceID, "panic": fmt.Sprint(r), "stack": string(debug.Stack())}).Error("recovered from panic while handling card")
			}
			if !doorHandled {
				s.denyAfterPanic(ctx, traceID, r)
			}
		}
	}()

	fields := logrus.Fields{"trace_id": traceID, "idm": id.String()}
	before := s.deps.Controller.Snapshot().State

	res := s.deps.Verifier.Verify(ctx, id)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveVerification(res)
	}
	s.logResult(fields, res)

	doorHandled = true
	after, actErr := s.deps.Controller.Handle(ctx, res)
	switch {
	case actErr != nil:
		s.observeIteration("actuation_error")
	case res.Granted():
		s.observeIteration("granted")
	default:
		s.observeIteration("denied")
	}

	if s.deps.Audit != nil {
		req := &audit.RecordAccessRequest{
			TraceID:      traceID,
			Status:       string(res.Status),
			Source:       string(res.Source),
			Reason:       res.Reason,
			Granted:      res.Granted(),
			StateBefore:  before.String(),
			StateAfter:   after.String(),
			ActuationErr: actErr,
		}
		if s.deps.HashCard != nil {
			req.CardHash = s.deps.HashCard(id)
		}
		// the audit service logs its own failures
		_ = s.deps.Audit.RecordAccess(ctx, req)
	}
}

// denyAfterPanic shows the deny signal for a presentation that never reached the
// controller. The door does not move.
func (s *AccessService) denyAfterPanic(ctx context.Context, traceID string, cause any) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.WithFields(logrus.Fields{"trace_id": traceID, "panic": fmt.Sprint(r)}).Error("deny signal failed after panic")
		}
	}()
	fault := verification.NewAuthorityFault("panic", fmt.Errorf("presentation panic: %v", cause))
	if _, err := s.deps.Controller.Handle(ctx, fault); err != nil && s.logger != nil {
		s.logger.WithField("trace_id", traceID).WithError(err).Warn("deny signal failed after panic")
	}
}

func (s *AccessService) logResult(fields logrus.Fields, res verification.Result) {
	if s.logger == nil {
		return
	}
	entry := s.logger.WithFields(fields).WithFields(logrus.Fields{"status": res.Status, "source": res.Source, "reason": res.Reason})
	if res.Err != nil {
		entry = entry.WithError(res.Err)
	}
	switch res.Status {
	case verification.Verified:
		entry.Info("card registered")
	case verification.Denied:
		entry.Info("card unregistered")
	case verification.AuthorityFault:
		entry.Error("card authority fault; denying")
	case verification.TransportFault:
		if errors.Is(res.Err, context.Canceled) {
			entry.Debug("verification cancelled")
			return
		}
		entry.Warn("card authority unreachable; denying")
	}
}

// Alive reports false while one presentation has been in progress longer than the
// stall threshold. Waiting for a card is never a stall.
func (s *AccessService) Alive() bool {
	since := s.busySince.Load()
	if since == 0 {
		return true
	}
	return s.deps.Now().Sub(time.Unix(0, since)) <= s.deps.StallThreshold
}

// Handled is the number of presentations processed since start.
func (s *AccessService) Handled() uint64 {
	return s.handled.Load()
}

func (s *AccessService) observeIteration(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveIteration(outcome)
	}
}
