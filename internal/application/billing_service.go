package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/sitereply/sitereply/internal/domain/entity"
	repo "github.com/sitereply/sitereply/internal/domain/repository"
	"github.com/sitereply/sitereply/pkg/helpers"
	"github.com/sitereply/sitereply/pkg/mailer"
)

var (
	ErrPlanNotPurchasable = errors.New("plan cannot be purchased")
	ErrCheckoutFailed     = errors.New("checkout session creation failed")
)

// EventDeduper remembers which provider events have already been applied so
// redelivery of the same event is a no-op. Events are marked only after
// successful processing; failed events stay eligible for retry.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// dedupTTL comfortably exceeds Stripe's retry horizon.
const dedupTTL = 72 * time.Hour

// RedisDeduper backs EventDeduper with Redis keys.
type RedisDeduper struct {
	rdb *redis.Client
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func dedupKey(eventID string) string { return "stripe:event:" + eventID }

func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, dedupKey(eventID)).Result()
	return n > 0, err
}

func (d *RedisDeduper) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, dedupKey(eventID), "1", dedupTTL).Err()
}

// BillingService creates checkout sessions and reconciles widget plan state
// from verified provider events. Plans are never mutated by direct client
// calls.
type BillingService struct {
	Widgets repo.WidgetRepository
	Dedup   EventDeduper
	Logger  *logrus.Logger
	Pub     *helpers.RabbitPublisher

	BaseURL     string
	PriceProID  string
	PriceFlexID string
	MailEnabled bool

	// swappable for tests
	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
}

func NewBillingService(widgets repo.WidgetRepository, dedup EventDeduper, logger *logrus.Logger, pub *helpers.RabbitPublisher, baseURL, pricePro, priceFlex string, mailEnabled bool) *BillingService {
	return &BillingService{
		Widgets:               widgets,
		Dedup:                 dedup,
		Logger:                logger,
		Pub:                   pub,
		BaseURL:               baseURL,
		PriceProID:            pricePro,
		PriceFlexID:           priceFlex,
		MailEnabled:           mailEnabled,
		createCheckoutSession: stripesession.New,
	}
}

func (s *BillingService) priceFor(plan entity.Plan) string {
	switch plan {
	case entity.PlanPro:
		return s.PriceProID
	case entity.PlanFlex:
		return s.PriceFlexID
	}
	return ""
}

// CreateCheckoutSession starts a subscription checkout for a widget upgrade
// and returns the hosted checkout URL. The widget id and target plan ride in
// session metadata so the completed-checkout event can be reconciled.
func (s *BillingService) CreateCheckoutSession(w *entity.Widget, plan entity.Plan) (string, error) {
	price := s.priceFor(plan)
	if price == "" {
		return "", ErrPlanNotPurchasable
	}
	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		SuccessURL: stripelib.String(s.BaseURL + "/api/billing/success"),
		CancelURL:  stripelib.String(s.BaseURL + "/api/billing/cancel"),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(price),
				Quantity: stripelib.Int64(1),
			},
		},
		Metadata: map[string]string{
			"widget_id": strconv.FormatInt(w.ID, 10),
			"plan":      string(plan),
		},
	}
	session, err := s.createCheckoutSession(params)
	if err != nil || session == nil || strings.TrimSpace(session.URL) == "" {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("widget_id", w.ID).Error("checkout session creation failed")
		}
		return "", ErrCheckoutFailed
	}
	return session.URL, nil
}

// checkoutSession is a minimal representation of a checkout.session event.
type checkoutSession struct {
	ID           string            `json:"id"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// subscription is a minimal representation of a subscription event.
type subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// invoice is a minimal representation of an invoice event.
type invoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}

// ProcessEvent applies one verified provider event. A returned error is
// transient: the caller answers 500 and the provider redelivers. Replays of
// an already-applied event return nil without touching state.
func (s *BillingService) ProcessEvent(ctx context.Context, event *stripelib.Event) error {
	if s.Dedup != nil && event.ID != "" {
		seen, err := s.Dedup.Seen(ctx, event.ID)
		if err != nil {
			// fail-open: a dedup outage must not block reconciliation
			if s.Logger != nil {
				s.Logger.WithError(err).WithField("event_id", event.ID).Warn("event dedup check failed")
			}
		} else if seen {
			if s.Logger != nil {
				s.Logger.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type}).Info("duplicate event ignored")
			}
			return nil
		}
	}

	if err := s.applyEvent(ctx, event); err != nil {
		return err
	}

	if s.Dedup != nil && event.ID != "" {
		if err := s.Dedup.Mark(ctx, event.ID); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("event_id", event.ID).Warn("event dedup mark failed")
		}
	}
	return nil
}

func (s *BillingService) applyEvent(ctx context.Context, event *stripelib.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var sess checkoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout.session: %w", err)
		}
		return s.handleCheckoutCompleted(ctx, sess)

	case "customer.subscription.deleted":
		var sub subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.handleSubscriptionDeleted(ctx, sub)

	case "invoice.payment_succeeded":
		var inv invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		// renewal acknowledgement only
		s.logInvoice(ctx, "invoice payment succeeded", inv)
		return nil

	case "invoice.payment_failed":
		var inv invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		// dunning hook; no state change yet
		s.logInvoice(ctx, "invoice payment failed", inv)
		return nil

	default:
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{"type": event.Type, "event_id": event.ID}).Info("webhook event ignored (unhandled type)")
		}
		return nil
	}
}

func (s *BillingService) handleCheckoutCompleted(ctx context.Context, sess checkoutSession) error {
	widgetIDStr := sess.Metadata["widget_id"]
	widgetID, err := strconv.ParseInt(widgetIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("checkout session %s carries no usable widget_id: %w", sess.ID, err)
	}
	plan := entity.ParsePlan(sess.Metadata["plan"])
	if !plan.Paid() {
		return fmt.Errorf("checkout session %s carries non-paid plan %q", sess.ID, sess.Metadata["plan"])
	}
	if sess.Subscription == "" {
		return fmt.Errorf("checkout session %s carries no subscription reference", sess.ID)
	}
	if err := s.Widgets.UpdatePlan(ctx, widgetID, plan, sess.Subscription); err != nil {
		return fmt.Errorf("apply plan %s to widget %d: %w", plan, widgetID, err)
	}
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{"widget_id": widgetID, "plan": plan}).Info("widget upgraded")
	}
	s.notifyPlanChanged(ctx, widgetID, plan)
	return nil
}

func (s *BillingService) handleSubscriptionDeleted(ctx context.Context, sub subscription) error {
	w, err := s.Widgets.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// already reset, or a subscription this service never issued
			if s.Logger != nil {
				s.Logger.WithField("subscription_id", sub.ID).Warn("subscription deleted for unknown widget")
			}
			return nil
		}
		return fmt.Errorf("lookup widget by subscription: %w", err)
	}
	if err := s.Widgets.UpdatePlan(ctx, w.ID, entity.PlanFree, ""); err != nil {
		return fmt.Errorf("reset widget %d to free: %w", w.ID, err)
	}
	if s.Logger != nil {
		s.Logger.WithField("widget_id", w.ID).Info("widget downgraded to free")
	}
	s.notifyPlanChanged(ctx, w.ID, entity.PlanFree)
	return nil
}

func (s *BillingService) logInvoice(ctx context.Context, msg string, inv invoice) {
	if s.Logger == nil {
		return
	}
	fields := logrus.Fields{"invoice_id": inv.ID, "subscription_id": inv.Subscription}
	if inv.Subscription != "" {
		if w, err := s.Widgets.GetBySubscriptionID(ctx, inv.Subscription); err == nil {
			fields["widget_id"] = w.ID
		}
	}
	s.Logger.WithFields(fields).Info(msg)
}

func (s *BillingService) notifyPlanChanged(ctx context.Context, widgetID int64, plan entity.Plan) {
	if s.Pub == nil || !s.MailEnabled {
		return
	}
	w, err := s.Widgets.GetByID(ctx, widgetID)
	if err != nil {
		return
	}
	job := mailer.EmailJob{
		To:       w.Email,
		Template: mailer.TemplatePlanChanged,
		Data: map[string]any{
			"Name":       w.Name,
			"WidgetName": w.Name,
			"Plan":       string(plan),
		},
	}
	if err := s.Pub.PublishJSON(ctx, job); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("widget_id", widgetID).Warn("plan change email enqueue failed")
	}
}
