package repository

import (
	"context"

	"github.com/sitereply/sitereply/internal/domain/entity"
)

// WidgetRepository defines the interface for widget-related database
// operations. Relationships are explicit queries; there is no lazy loading.
type WidgetRepository interface {
	Create(ctx context.Context, w *entity.Widget) error
	GetByID(ctx context.Context, id int64) (*entity.Widget, error)
	GetByPublicKey(ctx context.Context, key string) (*entity.Widget, error)
	GetBySubscriptionID(ctx context.Context, subID string) (*entity.Widget, error)
	ListByUser(ctx context.Context, userID int64) ([]*entity.Widget, error)
	UpdatePlan(ctx context.Context, id int64, plan entity.Plan, subscriptionID string) error
	UpdateLogoURL(ctx context.Context, id int64, logoURL string) error
}

// AuditLogger records security-relevant actions (registration, login, plan
// changes). Implementations must never persist secrets.
type AuditLogger interface {
	Record(ctx context.Context, userID int64, email, action, ip, userAgent string, metadata map[string]any)
}
