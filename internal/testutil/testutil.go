package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"commenta.app/cloud/internal/auth"
	"commenta.app/cloud/models"
	"commenta.app/cloud/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	WebhookSecret = "whsec_test_secret"
	JWTSecret     = "test-jwt-secret-0123456789-0123456789"
)

// NewStore opens a migrated SQLite store in a temp dir.
func NewStore(t testing.TB) *storage.SQLStore {
	t.Helper()
	store, err := storage.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func NewUserID() string {
	return uuid.NewString()
}

func CreateProfile(t testing.TB, store storage.Storage, plan string) *models.Profile {
	t.Helper()
	id := NewUserID()
	p := &models.Profile{ID: id, Email: id[:8] + "@example.com", FullName: "Test User", Plan: plan}
	require.NoError(t, store.SaveProfile(context.Background(), p))
	return p
}

// CreateProLicense creates a pro profile owning an active license with key.
func CreateProLicense(t testing.TB, store storage.Storage, key string) (*models.Profile, *models.License) {
	t.Helper()
	profile := CreateProfile(t, store, models.PlanPro)
	license, _, err := store.EnsureLicense(context.Background(), profile.ID, key)
	require.NoError(t, err)
	return profile, license
}

func Verifier() *auth.Verifier {
	return auth.NewVerifier(JWTSecret)
}

// Token mints a hosted-auth access token for userID.
func Token(t testing.TB, userID, email string) string {
	t.Helper()
	token, err := Verifier().Sign(userID, email, time.Hour)
	require.NoError(t, err)
	return token
}

// AuthRequest builds a request carrying a bearer token when token is set.
func AuthRequest(method, path string, body io.Reader, token string) *http.Request {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// SignedWebhookRequest signs payload with WebhookSecret the way Stripe does.
func SignedWebhookRequest(t testing.TB, path, payload string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    WebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func CheckoutCompletedEvent(userID, customerID, subscriptionID, email string) string {
	return fmt.Sprintf(`{
		"id": "evt_checkout_%[1]s",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_%[1]s",
			"object": "checkout.session",
			"customer": %[2]q,
			"subscription": %[3]q,
			"customer_email": %[4]q,
			"customer_details": {"email": %[4]q, "name": "Ana Souza"},
			"metadata": {"supabase_user_id": %[1]q}
		}}
	}`, userID, customerID, subscriptionID, email)
}

func SubscriptionEvent(eventType, subscriptionID, customerID, status string) string {
	return fmt.Sprintf(`{
		"id": "evt_%[2]s_%[4]s",
		"object": "event",
		"type": %[1]q,
		"data": {"object": {
			"id": %[2]q,
			"object": "subscription",
			"customer": %[3]q,
			"status": %[4]q
		}}
	}`, eventType, subscriptionID, customerID, status)
}

type SentMail struct {
	To, Name, Key string
}

// RecordingMailer captures license e-mails instead of sending them.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentMail
	Err  error
}

func (m *RecordingMailer) SendLicenseIssued(to, name, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{To: to, Name: name, Key: key})
	return m.Err
}

func (m *RecordingMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}
