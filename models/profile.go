package models

import "time"

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusCanceled = "canceled"
)

// Profile is the application-side record of an authenticated user.
// Plan and the Stripe fields are written only by the payment webhook.
type Profile struct {
	ID                       string    `json:"id"`
	Email                    string    `json:"email"`
	FullName                 string    `json:"full_name,omitempty"`
	Plan                     string    `json:"plan"`
	StripeCustomerID         string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID     string    `json:"stripe_subscription_id,omitempty"`
	StripeSubscriptionStatus string    `json:"stripe_subscription_status,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

func (p *Profile) IsPro() bool {
	return p != nil && p.Plan == PlanPro
}

// IsActiveSubscriptionStatus reports whether a Stripe subscription status
// entitles the customer to the pro plan.
func IsActiveSubscriptionStatus(status string) bool {
	return status == SubscriptionStatusActive || status == SubscriptionStatusTrialing
}

// PlanForSubscriptionStatus maps a Stripe subscription status to a plan.
func PlanForSubscriptionStatus(status string) string {
	if IsActiveSubscriptionStatus(status) {
		return PlanPro
	}
	return PlanFree
}
