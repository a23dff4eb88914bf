package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/domain/audit"
	"github.com/ueckoken/kagi/internal/core/ports"
	"github.com/ueckoken/kagi/internal/infrastructure/db"
)

const accessEventColumns = `id, trace_id, card_hash, status, source, reason, granted,
	state_before, state_after, actuation_error, occurred_at`

type accessEventRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewAccessEventRepository creates a new instance of AccessEventRepository
func NewAccessEventRepository(database *db.Database, logger *logrus.Logger) ports.AccessEventRepository {
	return &accessEventRepository{
		db:     database,
		logger: logger,
	}
}

// Create appends an access event
func (r *accessEventRepository) Create(ctx context.Context, ev *audit.AccessEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	query := r.db.Rebind(`INSERT INTO access_events (` + accessEventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.DB.ExecContext(ctx, query,
		ev.ID,
		ev.TraceID,
		ev.CardHash,
		ev.Status,
		ev.Source,
		ev.Reason,
		ev.Granted,
		ev.StateBefore,
		ev.StateAfter,
		ev.ActuationErr,
		ev.OccurredAt,
	)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"trace_id": ev.TraceID, "status": ev.Status}).WithError(err).Error("db: failed to insert access event")
		}
		return err
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"trace_id": ev.TraceID, "event_id": ev.ID}).Debug("db: access event inserted")
	}
	return nil
}

// List returns access events newest first
func (r *accessEventRepository) List(ctx context.Context, filter *audit.AccessEventFilter) ([]*audit.AccessEvent, error) {
	query, args := r.buildListQuery(filter, false)
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"query": query, "args": args}).Debug("db: executing access event list query")
	}

	events := []*audit.AccessEvent{}
	if err := r.db.DB.SelectContext(ctx, &events, query, args...); err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"query": query}).WithError(err).Error("db: failed to execute access event list query")
		}
		return nil, err
	}
	return events, nil
}

// Count returns the number of access events matching the filter
func (r *accessEventRepository) Count(ctx context.Context, filter *audit.AccessEventFilter) (int, error) {
	query, args := r.buildListQuery(filter, true)

	var count int
	if err := r.db.DB.GetContext(ctx, &count, query, args...); err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"query": query}).WithError(err).Error("db: failed to execute access event count query")
		}
		return 0, err
	}
	return count, nil
}

// buildListQuery constructs the SQL query and arguments for listing/counting access events
func (r *accessEventRepository) buildListQuery(filter *audit.AccessEventFilter, isCount bool) (string, []interface{}) {
	selectClause := "SELECT " + accessEventColumns
	if isCount {
		selectClause = "SELECT COUNT(*)"
	}

	query := selectClause + " FROM access_events"
	var conditions []string
	var args []interface{}

	if filter != nil {
		if filter.Granted != nil {
			conditions = append(conditions, "granted = ?")
			args = append(args, *filter.Granted)
		}
		if filter.CardHash != nil {
			conditions = append(conditions, "card_hash = ?")
			args = append(args, *filter.CardHash)
		}
		if filter.StartTime != nil {
			conditions = append(conditions, "occurred_at >= ?")
			args = append(args, filter.StartTime.UTC())
		}
		if filter.EndTime != nil {
			conditions = append(conditions, "occurred_at <= ?")
			args = append(args, filter.EndTime.UTC())
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if !isCount {
		query += " ORDER BY occurred_at DESC, id"
		if filter != nil {
			if filter.Limit > 0 {
				query += " LIMIT ?"
				args = append(args, filter.Limit)
			}
			if filter.Offset > 0 {
				if filter.Limit <= 0 && r.db.Driver == db.DriverSQLite {
					// sqlite only accepts OFFSET after LIMIT
					query += " LIMIT -1"
				}
				query += " OFFSET ?"
				args = append(args, filter.Offset)
			}
		}
	}

	return r.db.Rebind(query), args
}
