package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/domain/audit"
	"github.com/ueckoken/kagi/internal/core/ports"
)

const maxAccessEventPage = 500

type AuditService struct {
	repo   ports.AccessEventRepository
	logger *logrus.Logger
	now    func() time.Time
}

// NewAuditService returns a service that drops events when repo is nil.
func NewAuditService(repo ports.AccessEventRepository, logger *logrus.Logger) ports.AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *AuditService) RecordAccess(ctx context.Context, req *audit.RecordAccessRequest) error {
	if s.repo == nil {
		return nil
	}

	ev := &audit.AccessEvent{
		ID:          uuid.New(),
		TraceID:     req.TraceID,
		CardHash:    req.CardHash,
		Status:      req.Status,
		Source:      req.Source,
		Reason:      req.Reason,
		Granted:     req.Granted,
		StateBefore: req.StateBefore,
		StateAfter:  req.StateAfter,
		OccurredAt:  s.now().UTC(),
	}
	if req.ActuationErr != nil {
		ev.ActuationErr = req.ActuationErr.Error()
	}

	if err := s.repo.Create(ctx, ev); err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"trace_id": req.TraceID, "status": req.Status}).WithError(err).Error("failed to persist access event")
		}
		return err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"trace_id": req.TraceID, "event_id": ev.ID, "granted": ev.Granted}).Debug("access event persisted")
	}
	return nil
}

func (s *AuditService) GetAccessEvents(ctx context.Context, filter *audit.AccessEventFilter) ([]*audit.AccessEvent, int, error) {
	if s.repo == nil {
		return []*audit.AccessEvent{}, 0, nil
	}
	if filter == nil {
		filter = &audit.AccessEventFilter{}
	}
	if filter.Limit <= 0 || filter.Limit > maxAccessEventPage {
		filter.Limit = maxAccessEventPage
	}

	events, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
