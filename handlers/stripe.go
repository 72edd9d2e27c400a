package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"commenta.app/cloud/internal/licensing"
	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/internal/metrics"
	"commenta.app/cloud/models"
	"commenta.app/cloud/storage"
	"github.com/getsentry/sentry-go"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	webhookBodyLimit = int64(65536)

	metadataUserID = "supabase_user_id"
)

type webhookReceivedResponse struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies and applies subscription lifecycle events. Every
// handled event is idempotent so Stripe retries are safe.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	fail := func(code int, message string) {
		status = code
		writeError(w, code, message)
	}

	secret := strings.TrimSpace(s.opts.StripeWebhookSecret)
	if secret == "" {
		logger.Error("STRIPE_WEBHOOK_SECRET not configured")
		fail(http.StatusBadRequest, "Webhook secret not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		fail(http.StatusBadRequest, "Failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(signature) == "" {
		fail(http.StatusBadRequest, "Missing Stripe-Signature header")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		logger.Warn("Webhook signature verification failed", map[string]interface{}{
			"error": err.Error(),
		})
		fail(http.StatusBadRequest, "Invalid signature")
		return
	}
	eventType = string(event.Type)

	logger.Info("Stripe event received", map[string]interface{}{
		"event_type": eventType,
		"event_id":   event.ID,
	})

	if err := s.handleStripeEvent(r.Context(), &event); err != nil {
		sentry.CaptureException(err)
		logger.Error("Stripe webhook processing failed", map[string]interface{}{
			"error":      err.Error(),
			"event_type": eventType,
			"event_id":   event.ID,
		})
		fail(http.StatusInternalServerError, "Webhook handler failed")
		return
	}

	writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
}

func (s *Server) handleStripeEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.handleCheckoutCompleted(ctx, &session)

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.handleSubscriptionUpdated(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.handleSubscriptionDeleted(ctx, &sub)

	default:
		logger.Info("Unhandled webhook event type", map[string]interface{}{
			"event_type": string(event.Type),
			"event_id":   event.ID,
		})
		return nil
	}
}

func (s *Server) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	userID := strings.TrimSpace(session.Metadata[metadataUserID])
	if userID == "" {
		logger.Warn("Checkout session without user reference", map[string]interface{}{
			"session_id": session.ID,
		})
		return nil
	}

	customerEmail := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		customerEmail = session.CustomerDetails.Email
	}

	profile, err := s.Storage.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		// Profiles normally exist from sign-up; create one so the license can reference it.
		profile = &models.Profile{ID: userID, Email: customerEmail, Plan: models.PlanFree}
		if session.CustomerDetails != nil {
			profile.FullName = session.CustomerDetails.Name
		}
		if err := s.Storage.SaveProfile(ctx, profile); err != nil {
			return err
		}
	}

	update := storage.SubscriptionUpdate{
		Plan:   models.PlanPro,
		Status: models.SubscriptionStatusActive,
	}
	if session.Customer != nil {
		update.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		update.SubscriptionID = session.Subscription.ID
	}
	if err := s.Storage.UpdateSubscriptionByUser(ctx, userID, update); err != nil {
		return err
	}

	key, err := licensing.GenerateKey()
	if err != nil {
		return err
	}
	license, created, err := s.Storage.EnsureLicense(ctx, userID, key)
	if err != nil {
		return fmt.Errorf("ensure license for user %s: %w", userID, err)
	}

	logger.Info("Checkout completed", map[string]interface{}{
		"user_id":         userID,
		"session_id":      session.ID,
		"license_id":      license.ID,
		"license_created": created,
	})

	if created {
		to := profile.Email
		if to == "" {
			to = customerEmail
		}
		if err := s.Mailer.SendLicenseIssued(to, profile.FullName, license.Key); err != nil {
			logger.Error("Failed to send license email", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

func (s *Server) handleSubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	customerID := subscriptionCustomerID(sub)
	if customerID == "" {
		logger.Warn("Subscription update without customer", map[string]interface{}{
			"subscription_id": sub.ID,
		})
		return nil
	}

	status := string(sub.Status)
	n, err := s.Storage.UpdateSubscriptionByCustomer(ctx, customerID, storage.SubscriptionUpdate{
		Plan:           models.PlanForSubscriptionStatus(status),
		SubscriptionID: sub.ID,
		Status:         status,
	})
	if err != nil {
		return err
	}

	logger.Info("Subscription updated", map[string]interface{}{
		"stripe_customer_id": customerID,
		"status":             status,
		"profiles":           n,
	})
	return nil
}

func (s *Server) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	customerID := subscriptionCustomerID(sub)
	if customerID == "" {
		logger.Warn("Subscription deletion without customer", map[string]interface{}{
			"subscription_id": sub.ID,
		})
		return nil
	}

	n, err := s.Storage.UpdateSubscriptionByCustomer(ctx, customerID, storage.SubscriptionUpdate{
		Plan:   models.PlanFree,
		Status: models.SubscriptionStatusCanceled,
	})
	if err != nil {
		return err
	}

	logger.Info("Subscription deleted", map[string]interface{}{
		"stripe_customer_id": customerID,
		"profiles":           n,
	})
	return nil
}

func subscriptionCustomerID(sub *stripe.Subscription) string {
	if sub.Customer == nil {
		return ""
	}
	return strings.TrimSpace(sub.Customer.ID)
}

type CheckoutRequest struct {
	SuccessURL string `json:"successUrl" validate:"omitempty,url"`
	CancelURL  string `json:"cancelUrl" validate:"omitempty,url"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// Checkout starts a PRO subscription checkout for the signed-in user.
func (s *Server) Checkout(w http.ResponseWriter, r *http.Request) {
	if s.opts.StripeSecretKey == "" {
		writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
		return
	}
	if s.opts.StripePriceIDPro == "" {
		logger.Error("STRIPE_PRICE_ID_PRO not configured")
		writeError(w, http.StatusInternalServerError, "Price not configured")
		return
	}

	var req CheckoutRequest
	if err := s.decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SuccessURL == "" {
		req.SuccessURL = s.opts.AppURL + "/dashboard?success=1"
	}
	if req.CancelURL == "" {
		req.CancelURL = s.opts.AppURL + "/dashboard"
	}

	id := identity(r)
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.opts.StripePriceIDPro),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: id.UserID},
		},
	}
	if id.Email != "" {
		params.CustomerEmail = stripe.String(id.Email)
	}
	params.AddMetadata(metadataUserID, id.UserID)

	session, err := s.CreateCheckoutSession(params)
	if err != nil || session == nil || session.URL == "" {
		msg := "empty session"
		if err != nil {
			msg = err.Error()
		}
		logger.Error("Failed to create checkout session", map[string]interface{}{
			"user_id": id.UserID,
			"error":   msg,
		})
		writeError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{URL: session.URL})
}
