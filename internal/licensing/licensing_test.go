package licensing

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"commenta.app/cloud/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type siteRecord struct {
	licenseID, siteURL, siteName string
	at                           time.Time
}

type fakeStore struct {
	licenses  map[string]*models.License
	profiles  map[string]*models.Profile
	sites     []siteRecord
	lookupErr error
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		licenses: map[string]*models.License{},
		profiles: map[string]*models.Profile{},
	}
}

func (f *fakeStore) FindLicenseByKey(_ context.Context, key string) (*models.License, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.licenses[key], nil
}

func (f *fakeStore) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	return f.profiles[userID], nil
}

func (f *fakeStore) UpsertLicenseSite(_ context.Context, licenseID, siteURL, siteName string, at time.Time) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.sites = append(f.sites, siteRecord{licenseID, siteURL, siteName, at})
	return nil
}

func seeded(status, plan string) *fakeStore {
	store := newFakeStore()
	store.licenses["K"] = &models.License{ID: "lic-1", UserID: "user-1", Key: "K", Status: status}
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Plan: plan}
	return store
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		store   *fakeStore
		token   string
		want    Result
		upserts int
	}{
		{"valid pro", seeded(models.StatusActive, models.PlanPro), "K", Result{Valid: true, Plan: "pro"}, 1},
		{"unknown key", seeded(models.StatusActive, models.PlanPro), "nope", Result{Message: MessageInvalidToken}, 0},
		{"revoked", seeded(models.StatusRevoked, models.PlanPro), "K", Result{Message: MessageRevoked}, 0},
		{"free plan", seeded(models.StatusActive, models.PlanFree), "K", Result{Message: MessageNotPro}, 0},
		{"blank token", seeded(models.StatusActive, models.PlanPro), "   ", Result{Message: MessageTokenRequired}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.store)
			got, err := v.Validate(context.Background(), Request{Token: tt.token, SiteURL: "https://example.com"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, tt.store.sites, tt.upserts)
		})
	}
}

func TestValidate_MissingProfile(t *testing.T) {
	store := seeded(models.StatusActive, models.PlanPro)
	delete(store.profiles, "user-1")

	got, err := NewValidator(store).Validate(context.Background(), Request{Token: "K"})
	require.NoError(t, err)
	assert.Equal(t, Result{Message: MessageAccountNotFound}, got)
}

func TestValidate_NoSiteURLSkipsRegistration(t *testing.T) {
	store := seeded(models.StatusActive, models.PlanPro)

	got, err := NewValidator(store).Validate(context.Background(), Request{Token: "K", SiteURL: "   "})
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.Empty(t, store.sites)
}

func TestValidate_RecordsNormalizedSite(t *testing.T) {
	store := seeded(models.StatusActive, models.PlanPro)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewValidator(store)
	v.Now = func() time.Time { return fixed }

	_, err := v.Validate(context.Background(), Request{Token: "K", SiteURL: "  Example.COM/ ", SiteName: " Blog "})
	require.NoError(t, err)

	require.Len(t, store.sites, 1)
	assert.Equal(t, siteRecord{"lic-1", "https://example.com", "Blog", fixed}, store.sites[0])
}

func TestValidate_UpsertFailureIsSwallowed(t *testing.T) {
	store := seeded(models.StatusActive, models.PlanPro)
	store.upsertErr = errors.New("disk full")

	got, err := NewValidator(store).Validate(context.Background(), Request{Token: "K", SiteURL: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, Result{Valid: true, Plan: "pro"}, got)
}

func TestValidate_StoreError(t *testing.T) {
	store := seeded(models.StatusActive, models.PlanPro)
	store.lookupErr = errors.New("connection reset")

	got, err := NewValidator(store).Validate(context.Background(), Request{Token: "K"})
	require.Error(t, err)
	assert.False(t, got.Valid)
	assert.Equal(t, MessageInternalError, got.Message)
}

func TestNormalizeSiteURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com", "https://example.com"},
		{"https://example.com/", "https://example.com"},
		{"EXAMPLE.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"  https://Example.com/blog/  ", "https://example.com"},
		{"https://example.com:443", "https://example.com"},
		{"http://example.com:80/", "http://example.com"},
		{"https://example.com:8443/", "https://example.com:8443"},
		{"localhost:8080", "https://localhost:8080"},
		{"http://[::1]:8080/wp", "http://[::1]:8080"},
		{"", ""},
		{"   ", ""},
		{"%zz/", "%zz/"},
		{"münchen.de", "https://xn--mnchen-3ya.de"},
		{"https://MÜNCHEN.de/blog", "https://xn--mnchen-3ya.de"},
		{"https://xn--mnchen-3ya.de", "https://xn--mnchen-3ya.de"},
		{"http://", "http://"},
		{"https://", "https://"},
		{"https:///", "https:///"},
		{"http:/", "https://http"},
		{"https://exa%41mple.com", "https://exa%41mple.com"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeSiteURL(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeSiteURL(got), "not idempotent")
		})
	}
}

func TestGenerateKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		assert.Len(t, key, 32)

		raw, err := base64.URLEncoding.DecodeString(key)
		require.NoError(t, err)
		assert.Len(t, raw, 24)

		assert.False(t, seen[key], "duplicate key")
		seen[key] = true
	}
}
