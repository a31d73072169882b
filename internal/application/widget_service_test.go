package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitereply/sitereply/internal/domain/entity"
	repo "github.com/sitereply/sitereply/internal/domain/repository"
)

// dupOnCreateRepo wraps fakeWidgetRepo to simulate uniqueness violations.
type dupOnCreateRepo struct {
	*fakeWidgetRepo
	dupCount int
}

func (r *dupOnCreateRepo) Create(ctx context.Context, w *entity.Widget) error {
	if r.dupCount > 0 {
		r.dupCount--
		return repo.ErrDuplicate
	}
	w.ID = int64(len(r.widgets) + 1)
	return r.fakeWidgetRepo.Create(ctx, w)
}

func TestWidgetCreate(t *testing.T) {
	widgets := &dupOnCreateRepo{fakeWidgetRepo: newFakeWidgetRepo()}
	svc := NewWidgetService(widgets, nil, nil, "", nil, "")

	w, err := svc.Create(context.Background(), 42, CreateWidgetInput{
		Name:    "Bakery",
		Email:   "owner@bakery.test",
		Summary: "We bake bread.",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), w.UserID)
	assert.Equal(t, entity.PlanFree, w.Plan)
	assert.NotEmpty(t, w.PublicKey)
	assert.Len(t, w.PublicKey, 32)
}

func TestWidgetCreateDuplicateName(t *testing.T) {
	existing := &entity.Widget{ID: 1, UserID: 1, Name: "Bakery", Email: "owner@bakery.test"}
	// every insert reports a duplicate and the colliding row is not the key,
	// so the name or email is taken
	widgets := &dupOnCreateRepo{fakeWidgetRepo: newFakeWidgetRepo(existing), dupCount: 99}
	svc := NewWidgetService(widgets, nil, nil, "", nil, "")

	_, err := svc.Create(context.Background(), 2, CreateWidgetInput{
		Name:    "Bakery",
		Email:   "other@bakery.test",
		Summary: "Another bakery.",
	})
	assert.ErrorIs(t, err, ErrDuplicateWidget)
}

func TestWidgetGetByPublicKey(t *testing.T) {
	widgets := newFakeWidgetRepo(&entity.Widget{ID: 1, PublicKey: "wk_1"})
	svc := NewWidgetService(widgets, nil, nil, "", nil, "")

	w, err := svc.GetByPublicKey(context.Background(), "wk_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.ID)

	_, err = svc.GetByPublicKey(context.Background(), "wk_missing")
	assert.ErrorIs(t, err, ErrWidgetNotFound)

	_, err = svc.GetByPublicKey(context.Background(), "")
	assert.ErrorIs(t, err, ErrWidgetNotFound)
}

func TestWidgetGetOwned(t *testing.T) {
	widgets := newFakeWidgetRepo(&entity.Widget{ID: 1, UserID: 10})
	svc := NewWidgetService(widgets, nil, nil, "", nil, "")

	w, err := svc.GetOwned(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.ID)

	_, err = svc.GetOwned(context.Background(), 11, 1)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = svc.GetOwned(context.Background(), 10, 2)
	assert.ErrorIs(t, err, ErrWidgetNotFound)
}
