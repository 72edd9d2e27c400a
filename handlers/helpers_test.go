package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"commenta.app/cloud/internal/testutil"
	"commenta.app/cloud/models"
	"commenta.app/cloud/storage"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *Server
	store  *storage.SQLStore
	mailer *testutil.RecordingMailer
}

func newTestEnv(t *testing.T, configure ...func(*Options, *Deps)) *testEnv {
	t.Helper()
	store := testutil.NewStore(t)
	mailer := &testutil.RecordingMailer{}

	opts := Options{
		Version:             "test",
		AppURL:              "https://commenta.app",
		StripeWebhookSecret: testutil.WebhookSecret,
	}
	deps := Deps{
		Store:  store,
		Auth:   testutil.Verifier(),
		Mailer: mailer,
	}
	for _, fn := range configure {
		fn(&opts, &deps)
	}

	return &testEnv{
		server: NewServer(opts, deps),
		store:  store,
		mailer: mailer,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

// userRequest sends a JSON request as the given profile.
func (e *testEnv) userRequest(t *testing.T, method, path string, body interface{}, p *models.Profile) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	token := ""
	if p != nil {
		token = testutil.Token(t, p.ID, p.Email)
	}
	if reader == nil {
		return e.do(testutil.AuthRequest(method, path, nil, token))
	}
	return e.do(testutil.AuthRequest(method, path, reader, token))
}

func (e *testEnv) admin(t *testing.T) *models.Profile {
	t.Helper()
	p := testutil.CreateProfile(t, e.store, models.PlanFree)
	require.NoError(t, e.store.GrantAdmin(t.Context(), p.ID))
	return p
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func storageUpdate(plan string) storage.SubscriptionUpdate {
	return storage.SubscriptionUpdate{Plan: plan}
}
