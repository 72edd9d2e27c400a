package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfile_IsPro(t *testing.T) {
	var nilProfile *Profile
	assert.False(t, nilProfile.IsPro())
	assert.False(t, (&Profile{Plan: PlanFree}).IsPro())
	assert.True(t, (&Profile{Plan: PlanPro}).IsPro())
}

func TestPlanForSubscriptionStatus(t *testing.T) {
	tests := []struct {
		status string
		plan   string
	}{
		{"active", PlanPro},
		{"trialing", PlanPro},
		{"past_due", PlanFree},
		{"unpaid", PlanFree},
		{"canceled", PlanFree},
		{"incomplete", PlanFree},
		{"", PlanFree},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.plan, PlanForSubscriptionStatus(tt.status))
		})
	}
}

func TestLicense_IsActive(t *testing.T) {
	var nilLicense *License
	assert.False(t, nilLicense.IsActive())
	assert.True(t, (&License{Status: StatusActive}).IsActive())
	assert.False(t, (&License{Status: StatusRevoked}).IsActive())
	assert.False(t, (&License{}).IsActive())
}

func TestValidTicketStatus(t *testing.T) {
	for _, s := range []string{"open", "in_progress", "closed"} {
		assert.True(t, ValidTicketStatus(s), s)
	}
	for _, s := range []string{"", "OPEN", "pending", "resolved"} {
		assert.False(t, ValidTicketStatus(s), s)
	}
}

func TestParseReleaseChannel(t *testing.T) {
	ch, ok := ParseReleaseChannel("beta")
	assert.True(t, ok)
	assert.Equal(t, ChannelBeta, ch)

	ch, ok = ParseReleaseChannel("nightly")
	assert.False(t, ok)
	assert.Equal(t, ChannelStable, ch)
}
