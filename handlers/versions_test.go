package handlers

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"commenta.app/cloud/internal/objectstore"
	"commenta.app/cloud/internal/testutil"
	"commenta.app/cloud/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createVersion(t *testing.T, env *testEnv, admin *models.Profile, body map[string]interface{}) *models.PluginVersion {
	t.Helper()
	rec := env.userRequest(t, http.MethodPost, "/api/admin/versions", body, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[map[string]*models.PluginVersion](t, rec)["version"]
}

func TestVersions_CreateAndChangelog(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)

	v := createVersion(t, env, admin, map[string]interface{}{
		"version":        "1.2.0",
		"release_date":   "2026-02-10",
		"description":    "Threaded replies",
		"changelog_text": `<p>New <strong>replies</strong></p><script>alert(1)</script>`,
		"download_url":   "https://cdn.commenta.app/1.2.0/commenta.zip",
	})
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, models.ChannelStable, v.ReleaseChannel)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/changelog/1.2.0", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody[ChangelogResponse](t, rec)
	assert.Equal(t, "1.2.0", got.Version)
	assert.Equal(t, "2026-02-10", got.ReleaseDate)
	assert.Equal(t, "Threaded replies", got.Description)
	assert.Equal(t, "<p>New <strong>replies</strong></p>", got.ChangelogText)
	assert.Equal(t, "https://cdn.commenta.app/1.2.0/commenta.zip", got.DownloadURL)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/changelog/9.9.9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersions_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)
	createVersion(t, env, admin, map[string]interface{}{"version": "1.0.0"})

	tests := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{"missing version", map[string]interface{}{"description": "x"}, http.StatusBadRequest},
		{"blank version", map[string]interface{}{"version": "  "}, http.StatusBadRequest},
		{"bad date", map[string]interface{}{"version": "2.0.0", "release_date": "10/02/2026"}, http.StatusBadRequest},
		{"bad url", map[string]interface{}{"version": "2.0.0", "download_url": "ftp//nope"}, http.StatusBadRequest},
		{"duplicate", map[string]interface{}{"version": "1.0.0"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.userRequest(t, http.MethodPost, "/api/admin/versions", tt.body, admin)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestVersions_LatestByChannel(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/changelog/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	createVersion(t, env, admin, map[string]interface{}{"version": "1.0.9", "release_date": "2026-01-20"})
	createVersion(t, env, admin, map[string]interface{}{"version": "1.0.10", "release_date": "2026-01-10"})
	createVersion(t, env, admin, map[string]interface{}{"version": "2.0.0-beta.1", "release_channel": "beta", "is_prerelease": true})

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/changelog/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.0.10", decodeBody[ChangelogResponse](t, rec).Version)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/changelog/latest?channel=beta", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[ChangelogResponse](t, rec)
	assert.Equal(t, "2.0.0-beta.1", got.Version)
	assert.Equal(t, models.ChannelBeta, got.Channel)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/changelog/latest?channel=nightly", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.0.10", decodeBody[ChangelogResponse](t, rec).Version)
}

func TestVersions_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)
	v := createVersion(t, env, admin, map[string]interface{}{"version": "1.0.0", "description": "first"})
	createVersion(t, env, admin, map[string]interface{}{"version": "1.1.0"})

	rec := env.userRequest(t, http.MethodPatch, "/api/admin/versions/"+v.ID, map[string]interface{}{"description": "updated"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := env.store.GetVersion(t.Context(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", stored.Description)
	assert.Equal(t, "1.0.0", stored.Version)

	rec = env.userRequest(t, http.MethodPatch, "/api/admin/versions/"+v.ID, map[string]interface{}{}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No fields to update", decodeBody[errorResponse](t, rec).Error)

	rec = env.userRequest(t, http.MethodPatch, "/api/admin/versions/"+v.ID, map[string]interface{}{"version": "1.1.0"}, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.userRequest(t, http.MethodPatch, "/api/admin/versions/"+testutil.NewUserID(), map[string]interface{}{"description": "x"}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.userRequest(t, http.MethodDelete, "/api/admin/versions/"+v.ID, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.userRequest(t, http.MethodDelete, "/api/admin/versions/"+v.ID, nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.userRequest(t, http.MethodGet, "/api/admin/versions", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decodeBody[VersionsResponse](t, rec).Versions
	require.Len(t, versions, 1)
	assert.Equal(t, "1.1.0", versions[0].Version)
}

type uploadRecorder struct {
	mu          sync.Mutex
	path        string
	contentType string
	body        []byte
}

func newObjectServer(t *testing.T) (*objectstore.Client, *uploadRecorder) {
	t.Helper()
	rec := &uploadRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.path = r.URL.Path
		rec.contentType = r.Header.Get("Content-Type")
		rec.body = body
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Key":"ok"}`))
	}))
	t.Cleanup(srv.Close)
	return objectstore.New(srv.URL, "service-key", "releases"), rec
}

func uploadRequest(t *testing.T, p *models.Profile, fileName string, content []byte, version string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if version != "" {
		require.NoError(t, mw.WriteField("version", version))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/versions/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testutil.Token(t, p.ID, p.Email))
	return req
}

func TestVersions_UploadRelease(t *testing.T) {
	client, uploads := newObjectServer(t)
	env := newTestEnv(t, func(_ *Options, d *Deps) { d.Objects = client })
	admin := env.admin(t)

	rec := env.do(uploadRequest(t, admin, "commenta.zip", []byte("PK\x03\x04zip"), "1.3.0 / ../"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[UploadResponse](t, rec)
	assert.Equal(t, "commenta.zip", resp.FileName)
	assert.True(t, strings.HasSuffix(resp.DownloadURL, "/storage/v1/object/public/releases/1.3.0/commenta.zip"), resp.DownloadURL)

	uploads.mu.Lock()
	defer uploads.mu.Unlock()
	assert.Equal(t, "/storage/v1/object/releases/1.3.0/commenta.zip", uploads.path)
	assert.Equal(t, "application/zip", uploads.contentType)
	assert.Equal(t, []byte("PK\x03\x04zip"), uploads.body)
}

func TestVersions_UploadRejections(t *testing.T) {
	client, _ := newObjectServer(t)
	env := newTestEnv(t, func(_ *Options, d *Deps) { d.Objects = client })
	admin := env.admin(t)

	rec := env.do(uploadRequest(t, admin, "", nil, "1.0.0"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Arquivo .zip é obrigatório", decodeBody[errorResponse](t, rec).Error)

	rec = env.do(uploadRequest(t, admin, "commenta.tar.gz", []byte("x"), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Apenas arquivos .zip são permitidos", decodeBody[errorResponse](t, rec).Error)

	big := bytes.Repeat([]byte("a"), maxReleaseSize+1)
	rec = env.do(uploadRequest(t, admin, "big.zip", big, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Arquivo muito grande. Máximo 4MB.", decodeBody[errorResponse](t, rec).Error)

	req := testutil.AuthRequest(http.MethodPost, "/api/admin/versions/upload", strings.NewReader("{}"), testutil.Token(t, admin.ID, admin.Email))
	rec = env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid form data", decodeBody[errorResponse](t, rec).Error)
}

func TestVersions_UploadWithoutObjectStore(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)

	rec := env.do(uploadRequest(t, admin, "commenta.zip", []byte("x"), ""))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
