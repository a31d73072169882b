package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/sitereply/sitereply/internal/domain/entity"
	repo "github.com/sitereply/sitereply/internal/domain/repository"
)

// fakeWidgetRepo is an in-memory WidgetRepository tracking plan updates.
type fakeWidgetRepo struct {
	mu          sync.Mutex
	widgets     map[int64]*entity.Widget
	planUpdates int
}

func newFakeWidgetRepo(ws ...*entity.Widget) *fakeWidgetRepo {
	m := make(map[int64]*entity.Widget, len(ws))
	for _, w := range ws {
		m[w.ID] = w
	}
	return &fakeWidgetRepo{widgets: m}
}

func (r *fakeWidgetRepo) Create(_ context.Context, w *entity.Widget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.widgets[w.ID] = w
	return nil
}

func (r *fakeWidgetRepo) GetByID(_ context.Context, id int64) (*entity.Widget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *fakeWidgetRepo) GetByPublicKey(_ context.Context, key string) (*entity.Widget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.widgets {
		if w.PublicKey == key {
			cp := *w
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *fakeWidgetRepo) GetBySubscriptionID(_ context.Context, subID string) (*entity.Widget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.widgets {
		if w.SubscriptionID == subID && subID != "" {
			cp := *w
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *fakeWidgetRepo) ListByUser(_ context.Context, userID int64) ([]*entity.Widget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Widget
	for _, w := range r.widgets {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeWidgetRepo) UpdatePlan(_ context.Context, id int64, plan entity.Plan, subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[id]
	if !ok {
		return repo.ErrNotFound
	}
	w.Plan = plan
	w.SubscriptionID = subscriptionID
	r.planUpdates++
	return nil
}

func (r *fakeWidgetRepo) UpdateLogoURL(_ context.Context, id int64, logoURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[id]
	if !ok {
		return repo.ErrNotFound
	}
	w.LogoURL = logoURL
	return nil
}

// fakeDeduper is an in-memory EventDeduper.
type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (d *fakeDeduper) Seen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[eventID], nil
}

func (d *fakeDeduper) Mark(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[eventID] = true
	return nil
}

func newTestBillingService(widgets repo.WidgetRepository, dedup EventDeduper) *BillingService {
	return &BillingService{
		Widgets:     widgets,
		Dedup:       dedup,
		BaseURL:     "https://sitereply.test",
		PriceProID:  "price_pro",
		PriceFlexID: "price_flex",
	}
}

func makeEvent(t *testing.T, id, eventType string, object any) *stripelib.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripelib.Event{
		ID:   id,
		Type: stripelib.EventType(eventType),
		Data: &stripelib.EventData{Raw: raw},
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	w := &entity.Widget{ID: 7, UserID: 1, Plan: entity.PlanFree}
	svc := newTestBillingService(newFakeWidgetRepo(w), nil)

	var captured *stripelib.CheckoutSessionParams
	svc.createCheckoutSession = func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		captured = params
		return &stripelib.CheckoutSession{URL: "https://checkout.stripe.test/cs_1"}, nil
	}

	url, err := svc.CreateCheckoutSession(w, entity.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", url)

	require.NotNil(t, captured)
	require.Len(t, captured.LineItems, 1)
	assert.Equal(t, "price_pro", *captured.LineItems[0].Price)
	assert.Equal(t, "7", captured.Metadata["widget_id"])
	assert.Equal(t, "pro", captured.Metadata["plan"])
	assert.Equal(t, "https://sitereply.test/api/billing/success", *captured.SuccessURL)
	assert.Equal(t, "https://sitereply.test/api/billing/cancel", *captured.CancelURL)
}

func TestCreateCheckoutSessionFreePlanRejected(t *testing.T) {
	w := &entity.Widget{ID: 7, Plan: entity.PlanFree}
	svc := newTestBillingService(newFakeWidgetRepo(w), nil)
	svc.createCheckoutSession = func(*stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		t.Fatal("checkout must not be created for the free plan")
		return nil, nil
	}

	_, err := svc.CreateCheckoutSession(w, entity.PlanFree)
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)
}

func TestProcessEventCheckoutCompleted(t *testing.T) {
	w := &entity.Widget{ID: 7, UserID: 1, Email: "owner@test", Plan: entity.PlanFree}
	widgets := newFakeWidgetRepo(w)
	svc := newTestBillingService(widgets, newFakeDeduper())

	ev := makeEvent(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"subscription": "sub_123",
		"metadata":     map[string]string{"widget_id": "7", "plan": "pro"},
	})
	require.NoError(t, svc.ProcessEvent(context.Background(), ev))

	got, err := widgets.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, entity.PlanPro, got.Plan)
	assert.Equal(t, "sub_123", got.SubscriptionID)
}

func TestProcessEventCheckoutCompletedMissingSubscription(t *testing.T) {
	w := &entity.Widget{ID: 7, Plan: entity.PlanFree}
	widgets := newFakeWidgetRepo(w)
	svc := newTestBillingService(widgets, newFakeDeduper())

	ev := makeEvent(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":       "cs_1",
		"metadata": map[string]string{"widget_id": "7", "plan": "pro"},
	})
	err := svc.ProcessEvent(context.Background(), ev)
	assert.Error(t, err)
	assert.Zero(t, widgets.planUpdates, "plan must not change without a subscription reference")

	// a failed event stays retryable
	seen, _ := svc.Dedup.Seen(context.Background(), "evt_1")
	assert.False(t, seen)
}

func TestProcessEventSubscriptionDeleted(t *testing.T) {
	w := &entity.Widget{ID: 7, Plan: entity.PlanPro, SubscriptionID: "sub_123"}
	widgets := newFakeWidgetRepo(w)
	svc := newTestBillingService(widgets, newFakeDeduper())

	ev := makeEvent(t, "evt_2", "customer.subscription.deleted", map[string]any{
		"id":     "sub_123",
		"status": "canceled",
	})
	require.NoError(t, svc.ProcessEvent(context.Background(), ev))

	got, err := widgets.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, entity.PlanFree, got.Plan)
	assert.Empty(t, got.SubscriptionID)
}

func TestProcessEventSubscriptionDeletedUnknown(t *testing.T) {
	widgets := newFakeWidgetRepo()
	svc := newTestBillingService(widgets, newFakeDeduper())

	ev := makeEvent(t, "evt_3", "customer.subscription.deleted", map[string]any{
		"id": "sub_unknown",
	})
	// unknown subscription is not a transient failure; acking stops redelivery
	assert.NoError(t, svc.ProcessEvent(context.Background(), ev))
}

func TestProcessEventDuplicateIgnored(t *testing.T) {
	w := &entity.Widget{ID: 7, Plan: entity.PlanFree}
	widgets := newFakeWidgetRepo(w)
	svc := newTestBillingService(widgets, newFakeDeduper())

	ev := makeEvent(t, "evt_4", "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"subscription": "sub_123",
		"metadata":     map[string]string{"widget_id": "7", "plan": "flex"},
	})
	require.NoError(t, svc.ProcessEvent(context.Background(), ev))
	require.NoError(t, svc.ProcessEvent(context.Background(), ev))
	assert.Equal(t, 1, widgets.planUpdates, "replayed event must not touch state again")
}

func TestProcessEventUnhandledType(t *testing.T) {
	widgets := newFakeWidgetRepo()
	svc := newTestBillingService(widgets, newFakeDeduper())

	ev := makeEvent(t, "evt_5", "customer.created", map[string]any{"id": "cus_1"})
	assert.NoError(t, svc.ProcessEvent(context.Background(), ev))
	assert.Zero(t, widgets.planUpdates)
}

func TestProcessEventInvoiceEventsAreAcked(t *testing.T) {
	w := &entity.Widget{ID: 7, Plan: entity.PlanPro, SubscriptionID: "sub_123"}
	widgets := newFakeWidgetRepo(w)
	svc := newTestBillingService(widgets, newFakeDeduper())

	for _, typ := range []string{"invoice.payment_succeeded", "invoice.payment_failed"} {
		ev := makeEvent(t, "evt_"+typ, typ, map[string]any{
			"id":           "in_1",
			"subscription": "sub_123",
		})
		assert.NoError(t, svc.ProcessEvent(context.Background(), ev), typ)
	}
	assert.Zero(t, widgets.planUpdates, "invoice events must not change plans")
}

func TestProcessEventMalformedPayload(t *testing.T) {
	widgets := newFakeWidgetRepo()
	svc := newTestBillingService(widgets, newFakeDeduper())

	ev := &stripelib.Event{
		ID:   "evt_bad",
		Type: "checkout.session.completed",
		Data: &stripelib.EventData{Raw: []byte("{not json")},
	}
	err := svc.ProcessEvent(context.Background(), ev)
	assert.Error(t, err)
	assert.Zero(t, widgets.planUpdates)
}
