package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/kasiviral/kasiviral-backend/internal/entitlements"
	"github.com/kasiviral/kasiviral-backend/pkg/db/models"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

// MetadataSubjectID is the subscription/checkout metadata key carrying the
// identity provider subject the payment belongs to.
const MetadataSubjectID = "subject_id"

type entitlementWriter interface {
	Activate(ctx context.Context, subjectID string, input entitlements.ActivateInput) (*models.Entitlement, error)
	Cancel(ctx context.Context, subjectID string) (*models.Entitlement, error)
}

type planResolver interface {
	PlanForPrice(priceID string) (enums.Plan, bool)
}

type ServiceParams struct {
	Entitlements entitlementWriter
	Plans        planResolver
	Logger       *logger.Logger
}

// Service applies verified Stripe billing events to entitlements.
type Service struct {
	entitlements entitlementWriter
	plans        planResolver
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Entitlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan resolver required")
	}
	return &Service{
		entitlements: params.Entitlements,
		plans:        params.Plans,
		logg:         params.Logger,
	}, nil
}

// HandleEvent routes a signature-verified event. Unknown types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated:
		sub, err := decodeSubscription(event)
		if err != nil {
			return err
		}
		return s.syncSubscription(ctx, sub)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		sub, err := decodeSubscription(event)
		if err != nil {
			return err
		}
		return s.cancel(ctx, sub)
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		s.logCheckout(ctx, &session)
		return nil
	default:
		return nil
	}
}

func decodeSubscription(event *stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
	}
	return &sub, nil
}

func (s *Service) syncSubscription(ctx context.Context, sub *stripe.Subscription) error {
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
	case stripe.SubscriptionStatusCanceled:
		return s.cancel(ctx, sub)
	default:
		// past_due, unpaid and incomplete keep the stored row; access lapses at expiry.
		s.logSkipped(ctx, sub, "subscription status does not grant access")
		return nil
	}

	subjectID, err := subjectFromMetadata(sub.Metadata)
	if err != nil {
		return err
	}
	item := primaryItem(sub)
	if item == nil || item.CurrentPeriodEnd <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription period end missing").
			WithDetails(map[string]any{"subscription": sub.ID})
	}

	plan, err := s.resolvePlan(item.Price)
	if err != nil {
		return err
	}

	_, err = s.entitlements.Activate(ctx, subjectID, entitlements.ActivateInput{
		Plan:      plan.String(),
		ExpiresAt: time.Unix(item.CurrentPeriodEnd, 0).UTC(),
		Refs:      billingRefs(sub, item),
	})
	if err != nil {
		return err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithSubjectID(ctx, subjectID), map[string]any{
			"subscription_id": sub.ID,
			"plan":            plan.String(),
			"status":          string(sub.Status),
		})
		s.logg.Info(logCtx, "entitlement activated from billing event")
	}
	return nil
}

func (s *Service) cancel(ctx context.Context, sub *stripe.Subscription) error {
	subjectID, err := subjectFromMetadata(sub.Metadata)
	if err != nil {
		return err
	}
	row, err := s.entitlements.Cancel(ctx, subjectID)
	if err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithSubjectID(ctx, subjectID), map[string]any{
			"subscription_id": sub.ID,
			"found":           row != nil,
		})
		s.logg.Info(logCtx, "entitlement canceled from billing event")
	}
	return nil
}

func (s *Service) resolvePlan(price *stripe.Price) (enums.Plan, error) {
	if price == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "subscription price missing")
	}
	if plan, ok := s.plans.PlanForPrice(price.ID); ok {
		return plan, nil
	}
	if price.Recurring != nil {
		switch price.Recurring.Interval {
		case stripe.PriceRecurringIntervalMonth:
			return enums.PlanMonthly, nil
		case stripe.PriceRecurringIntervalYear:
			return enums.PlanAnnual, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "unrecognized subscription price").
		WithDetails(map[string]any{"price": price.ID})
}

func (s *Service) logCheckout(ctx context.Context, session *stripe.CheckoutSession) {
	if s.logg == nil || session == nil {
		return
	}
	fields := map[string]any{
		"checkout_session_id": session.ID,
		"client_reference_id": session.ClientReferenceID,
	}
	if session.Subscription != nil {
		fields["subscription_id"] = session.Subscription.ID
	}
	if subject := strings.TrimSpace(session.Metadata[MetadataSubjectID]); subject != "" {
		ctx = s.logg.WithSubjectID(ctx, subject)
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "checkout session completed")
}

func (s *Service) logSkipped(ctx context.Context, sub *stripe.Subscription, reason string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"subscription_id": sub.ID,
		"status":          string(sub.Status),
		"reason":          reason,
	}), "billing event skipped")
}

func subjectFromMetadata(metadata map[string]string) (string, error) {
	subject := strings.TrimSpace(metadata[MetadataSubjectID])
	if subject == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("metadata %s missing", MetadataSubjectID))
	}
	return subject, nil
}

func primaryItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}

func billingRefs(sub *stripe.Subscription, item *stripe.SubscriptionItem) entitlements.BillingRefs {
	refs := entitlements.BillingRefs{}
	if sub.ID != "" {
		id := sub.ID
		refs.SubscriptionRef = &id
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		id := sub.Customer.ID
		refs.CustomerRef = &id
	}
	if item != nil && item.Price != nil && item.Price.ID != "" {
		id := item.Price.ID
		refs.PriceRef = &id
	}
	return refs
}
