package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitereply/sitereply/internal/domain/entity"
	"github.com/sitereply/sitereply/internal/domain/repository"
)

const widgetColumns = `id, user_id, name, email, summary, public_key, plan, subscription_id, logo_url, created_at, updated_at`

type WidgetRepository struct {
	pool *pgxpool.Pool
}

func NewWidgetRepository(pool *pgxpool.Pool) *WidgetRepository {
	return &WidgetRepository{pool: pool}
}

func (r *WidgetRepository) Create(ctx context.Context, w *entity.Widget) error {
	if w.Plan == "" {
		w.Plan = entity.PlanFree
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO widgets (user_id, name, email, summary, public_key, plan)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, w.UserID, w.Name, w.Email, w.Summary, w.PublicKey, string(w.Plan))

	if err := row.Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *WidgetRepository) GetByID(ctx context.Context, id int64) (*entity.Widget, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *WidgetRepository) GetByPublicKey(ctx context.Context, key string) (*entity.Widget, error) {
	return r.getOne(ctx, `WHERE public_key = $1`, key)
}

func (r *WidgetRepository) GetBySubscriptionID(ctx context.Context, subID string) (*entity.Widget, error) {
	return r.getOne(ctx, `WHERE subscription_id = $1`, subID)
}

func (r *WidgetRepository) ListByUser(ctx context.Context, userID int64) ([]*entity.Widget, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+widgetColumns+`
		FROM widgets
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Widget
	for rows.Next() {
		w, err := scanWidget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WidgetRepository) UpdatePlan(ctx context.Context, id int64, plan entity.Plan, subscriptionID string) error {
	var subArg any
	if subscriptionID != "" {
		subArg = subscriptionID
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE widgets
		SET plan = $1, subscription_id = $2, updated_at = $3
		WHERE id = $4
	`, string(plan), subArg, time.Now(), id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *WidgetRepository) UpdateLogoURL(ctx context.Context, id int64, logoURL string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE widgets
		SET logo_url = $1, updated_at = $2
		WHERE id = $3
	`, logoURL, time.Now(), id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *WidgetRepository) getOne(ctx context.Context, where string, arg any) (*entity.Widget, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+widgetColumns+`
		FROM widgets
	`+where, arg)
	w, err := scanWidget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return w, nil
}

func scanWidget(row pgx.Row) (*entity.Widget, error) {
	w := &entity.Widget{}
	var plan string
	var subID, logoURL *string
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Email, &w.Summary, &w.PublicKey,
		&plan, &subID, &logoURL, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	// unrecognized plan values collapse to free
	w.Plan = entity.ParsePlan(plan)
	if subID != nil {
		w.SubscriptionID = *subID
	}
	if logoURL != nil {
		w.LogoURL = *logoURL
	}
	return w, nil
}

var _ repository.WidgetRepository = (*WidgetRepository)(nil)
