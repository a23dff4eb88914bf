package ports

import (
	"context"

	"github.com/ueckoken/kagi/internal/core/domain/audit"
)

// AccessEventRepository defines the interface for access event persistence
type AccessEventRepository interface {
	Create(ctx context.Context, ev *audit.AccessEvent) error
	List(ctx context.Context, filter *audit.AccessEventFilter) ([]*audit.AccessEvent, error)
	Count(ctx context.Context, filter *audit.AccessEventFilter) (int, error)
}

// AuditService records door activity and serves it back to operators
type AuditService interface {
	RecordAccess(ctx context.Context, req *audit.RecordAccessRequest) error
	GetAccessEvents(ctx context.Context, filter *audit.AccessEventFilter) ([]*audit.AccessEvent, int, error)
}
