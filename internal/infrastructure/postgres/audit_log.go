package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/sitereply/sitereply/internal/domain/repository"
)

// AuditLog writes audit rows for security-relevant actions. Failures are
// logged and swallowed; auditing never blocks the request path.
type AuditLog struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewAuditLog(pool *pgxpool.Pool, logger *logrus.Logger) *AuditLog {
	return &AuditLog{pool: pool, logger: logger}
}

func (a *AuditLog) Record(ctx context.Context, userID int64, email, action, ip, userAgent string, metadata map[string]any) {
	if a == nil || a.pool == nil {
		return
	}
	md, _ := json.Marshal(metadata)
	var uid any
	if userID != 0 {
		uid = userID
	}
	_, err := a.pool.Exec(ctx, `
		INSERT INTO audit_logs (user_id, email, action, ip, user_agent, metadata)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), $6)
	`, uid, email, action, ip, userAgent, md)
	if err != nil && a.logger != nil {
		a.logger.WithError(err).WithField("action", action).Warn("audit insert failed")
	}
}

var _ repository.AuditLogger = (*AuditLog)(nil)
