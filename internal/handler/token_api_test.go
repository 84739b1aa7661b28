package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/releases", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeEnvelope(t, rec).Message)

	rec = env.do(http.MethodGet, "/api/releases", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/releases", nil, map[string]string{"Authorization": "Bearer " + testAPIToken})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/releases?api_token="+testAPIToken, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenRequiredWithoutConfiguredToken(t *testing.T) {
	env := newTestEnv(t)
	env.api.apiToken = ""

	rec := env.do(http.MethodGet, "/api/releases?api_token=", nil, map[string]string{"Authorization": "Bearer "})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPILatestRelease(t *testing.T) {
	env := newTestEnv(t)
	auth := map[string]string{"Authorization": "Bearer " + testAPIToken}

	rec := env.do(http.MethodGet, "/api/releases/latest", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	older := time.Now().UTC().Add(-48 * time.Hour)
	newer := time.Now().UTC().Add(-time.Hour)
	_, err := env.releases.Create(service.ReleaseInput{Version: "1.0.0", Title: "First", Status: db.StatusPublished, PublishedAt: &older})
	require.NoError(t, err)
	_, err = env.releases.Create(service.ReleaseInput{Version: "1.1.0", Title: "Second", Status: db.StatusPublished, PublishedAt: &newer})
	require.NoError(t, err)
	_, err = env.releases.Create(service.ReleaseInput{Version: "2.0.0-rc", Title: "Draft", Status: db.StatusDraft})
	require.NoError(t, err)

	rec = env.do(http.MethodGet, "/api/releases/latest", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest struct {
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &latest))
	assert.Equal(t, "1.1.0", latest.Version)

	rec = env.do(http.MethodGet, "/api/releases", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &list))
	assert.Len(t, list, 2)
}

func TestAPIPullEntries(t *testing.T) {
	env := newTestEnv(t)
	auth := map[string]string{"Authorization": "Bearer " + testAPIToken}

	_, err := env.forms.Create(service.FormInput{
		Handle:  "newsletter",
		Name:    "Newsletter",
		Fields:  []db.FormField{{Name: "email", Type: db.FieldEmail, Required: true}},
		Enabled: true,
	})
	require.NoError(t, err)
	for _, addr := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := env.forms.Submit("newsletter", map[string]any{"email": addr}, service.SubmissionMeta{})
		require.NoError(t, err)
	}

	type page struct {
		Entries []struct {
			ID      uint           `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"entries"`
		Next uint `json:"next"`
	}

	rec := env.do(http.MethodGet, "/api/forms/newsletter/entries?limit=2", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var first page
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &first))
	require.Len(t, first.Entries, 2)
	assert.Equal(t, "a@example.com", first.Entries[0].Payload["email"])
	assert.Equal(t, first.Entries[1].ID, first.Next)

	rec = env.do(http.MethodGet, "/api/forms/newsletter/entries?after="+strconv.FormatUint(uint64(first.Next), 10), nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var second page
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &second))
	require.Len(t, second.Entries, 1)
	assert.Equal(t, "c@example.com", second.Entries[0].Payload["email"])

	rec = env.do(http.MethodGet, "/api/forms/newsletter/entries?after=abc", nil, auth)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(http.MethodGet, "/api/forms/missing/entries", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
