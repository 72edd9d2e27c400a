package handlers

import (
	"net/http"
	"testing"
	"time"

	"commenta.app/cloud/internal/licensing"
	"commenta.app/cloud/internal/testutil"
	"commenta.app/cloud/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	free := testutil.CreateProfile(t, env.store, models.PlanFree)
	pro, _ := testutil.CreateProLicense(t, env.store, "KEY")

	rec := env.userRequest(t, http.MethodGet, "/api/me", nil, free)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.PlanFree, decodeBody[MeResponse](t, rec).Plan)

	rec = env.userRequest(t, http.MethodGet, "/api/me", nil, pro)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.PlanPro, decodeBody[MeResponse](t, rec).Plan)

	// A signed-in user without a profile row is reported as free.
	ghost := &models.Profile{ID: testutil.NewUserID(), Email: "ghost@example.com"}
	rec = env.userRequest(t, http.MethodGet, "/api/me", nil, ghost)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.PlanFree, decodeBody[MeResponse](t, rec).Plan)
}

func TestMe_Authentication(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.userRequest(t, http.MethodGet, "/api/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(testutil.AuthRequest(http.MethodGet, "/api/me", nil, "not-a-jwt"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cookie token", func(t *testing.T) {
		env := newTestEnv(t)
		p := testutil.CreateProfile(t, env.store, models.PlanFree)
		req := testutil.AuthRequest(http.MethodGet, "/api/me", nil, "")
		req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: testutil.Token(t, p.ID, p.Email)})

		rec := env.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("auth not configured", func(t *testing.T) {
		env := newTestEnv(t, func(_ *Options, d *Deps) { d.Auth = nil })
		p := testutil.CreateProfile(t, env.store, models.PlanFree)
		rec := env.userRequest(t, http.MethodGet, "/api/me", nil, p)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMySites(t *testing.T) {
	env := newTestEnv(t)
	pro, _ := testutil.CreateProLicense(t, env.store, "SITES-KEY")
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.server.Validator.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	for _, site := range []string{"https://b.com", "https://a.com", "https://b.com/"} {
		_, err := env.server.Validator.Validate(t.Context(), licensing.Request{Token: "SITES-KEY", SiteURL: site})
		require.NoError(t, err)
	}

	rec := env.userRequest(t, http.MethodGet, "/api/me/sites", nil, pro)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[SitesResponse](t, rec)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Sites, 2)
	assert.Equal(t, "https://b.com", resp.Sites[0].SiteURL, "most recently validated first")
}

func TestMySites_Empty(t *testing.T) {
	env := newTestEnv(t)
	free := testutil.CreateProfile(t, env.store, models.PlanFree)
	proWithoutLicense := testutil.CreateProfile(t, env.store, models.PlanPro)

	for _, p := range []*models.Profile{free, proWithoutLicense} {
		rec := env.userRequest(t, http.MethodGet, "/api/me/sites", nil, p)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"count":0,"sites":[]}`, rec.Body.String())
	}
}

func TestMyLicense(t *testing.T) {
	env := newTestEnv(t)
	pro, license := testutil.CreateProLicense(t, env.store, "MY-KEY")

	rec := env.userRequest(t, http.MethodGet, "/api/me/license", nil, pro)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[LicenseResponse](t, rec)
	assert.Equal(t, "MY-KEY", resp.LicenseKey)
	assert.Equal(t, models.StatusActive, resp.Status)
	assert.WithinDuration(t, license.CreatedAt, resp.CreatedAt, time.Second)

	free := testutil.CreateProfile(t, env.store, models.PlanFree)
	rec = env.userRequest(t, http.MethodGet, "/api/me/license", nil, free)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
