package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/sitereply/sitereply/internal/application"
	"github.com/sitereply/sitereply/internal/domain/entity"
)

const testWebhookSecret = "whsec_test_123"

type memDeduper struct {
	seen map[string]bool
}

func newMemDeduper() *memDeduper {
	return &memDeduper{seen: make(map[string]bool)}
}

func (d *memDeduper) Seen(_ context.Context, eventID string) (bool, error) {
	return d.seen[eventID], nil
}

func (d *memDeduper) Mark(_ context.Context, eventID string) error {
	d.seen[eventID] = true
	return nil
}

func newWebhookRouter(widgets *memWidgetRepo) *gin.Engine {
	logger := testLogger()
	widgetSvc := application.NewWidgetService(widgets, logger, nil, "", nil, "")
	billingSvc := &application.BillingService{
		Widgets: widgets,
		Dedup:   newMemDeduper(),
		Logger:  logger,
	}
	h := NewBillingHandler(widgetSvc, billingSvc, nil, logger, testWebhookSecret)

	r := gin.New()
	r.POST("/api/billing/webhook", h.Webhook)
	return r
}

func checkoutCompletedPayload(t *testing.T, eventID, widgetID, plan, subscription string) []byte {
	t.Helper()
	event := map[string]any{
		"id":   eventID,
		"type": "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":           "cs_1",
				"mode":         "subscription",
				"subscription": subscription,
				"metadata": map[string]any{
					"widget_id": widgetID,
					"plan":      plan,
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func signPayload(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

func postWebhook(r *gin.Engine, payload []byte, sigHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestWebhookMissingSignature(t *testing.T) {
	widgets := newMemWidgetRepo(&entity.Widget{ID: 7, Plan: entity.PlanFree})
	r := newWebhookRouter(widgets)

	payload := checkoutCompletedPayload(t, "evt_1", "7", "pro", "sub_123")
	rr := postWebhook(r, payload, "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, widgets.planUpdates, "unsigned request must not mutate state")
}

func TestWebhookInvalidSignature(t *testing.T) {
	widgets := newMemWidgetRepo(&entity.Widget{ID: 7, Plan: entity.PlanFree})
	r := newWebhookRouter(widgets)

	payload := checkoutCompletedPayload(t, "evt_1", "7", "pro", "sub_123")
	rr := postWebhook(r, payload, signPayload(payload, "whsec_wrong"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, widgets.planUpdates, "badly signed request must not mutate state")
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	widgets := newMemWidgetRepo(&entity.Widget{ID: 7, Email: "owner@test", Plan: entity.PlanFree})
	r := newWebhookRouter(widgets)

	payload := checkoutCompletedPayload(t, "evt_1", "7", "pro", "sub_123")
	rr := postWebhook(r, payload, signPayload(payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	w, err := widgets.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, entity.PlanPro, w.Plan)
	assert.Equal(t, "sub_123", w.SubscriptionID)
}

func TestWebhookCheckoutCompletedReplay(t *testing.T) {
	widgets := newMemWidgetRepo(&entity.Widget{ID: 7, Email: "owner@test", Plan: entity.PlanFree})
	r := newWebhookRouter(widgets)

	payload := checkoutCompletedPayload(t, "evt_1", "7", "flex", "sub_123")
	sig := signPayload(payload, testWebhookSecret)

	require.Equal(t, http.StatusOK, postWebhook(r, payload, sig).Code)
	require.Equal(t, http.StatusOK, postWebhook(r, payload, sig).Code)

	assert.Equal(t, 1, widgets.planUpdates, "redelivered event must be a no-op")
}

func TestWebhookProcessingFailureIsTransient(t *testing.T) {
	// widget 99 does not exist, so applying the event fails
	widgets := newMemWidgetRepo()
	r := newWebhookRouter(widgets)

	payload := checkoutCompletedPayload(t, "evt_1", "99", "pro", "sub_123")
	sig := signPayload(payload, testWebhookSecret)

	rr := postWebhook(r, payload, sig)
	assert.Equal(t, http.StatusInternalServerError, rr.Code, "retriable failures answer 500")

	// once the widget exists the redelivered event succeeds
	require.NoError(t, widgets.Create(context.Background(), &entity.Widget{ID: 99, Plan: entity.PlanFree}))
	rr = postWebhook(r, payload, sig)
	assert.Equal(t, http.StatusOK, rr.Code)

	w, err := widgets.GetByID(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, entity.PlanPro, w.Plan)
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	widgets := newMemWidgetRepo(&entity.Widget{ID: 7, Plan: entity.PlanFlex, SubscriptionID: "sub_123"})
	r := newWebhookRouter(widgets)

	event := map[string]any{
		"id":   "evt_del",
		"type": "customer.subscription.deleted",
		"data": map[string]any{
			"object": map[string]any{
				"id":     "sub_123",
				"status": "canceled",
			},
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	rr := postWebhook(r, payload, signPayload(payload, testWebhookSecret))
	require.Equal(t, http.StatusOK, rr.Code)

	w, err := widgets.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, entity.PlanFree, w.Plan)
	assert.Empty(t, w.SubscriptionID)
}

func TestWebhookMalformedBody(t *testing.T) {
	r := newWebhookRouter(newMemWidgetRepo())

	payload := []byte("{not json")
	rr := postWebhook(r, payload, signPayload(payload, testWebhookSecret))

	// the body signs fine but does not parse as an event
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
