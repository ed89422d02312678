package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/pkg/models"
)

func imageRequest(t *testing.T, f *fixture, sessionID, filename string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPathValues(echo.PathValues{
		{Name: "sessionId", Value: sessionID},
		{Name: "filename", Value: filename},
	})
	return rec, f.server.getImageHandler(c)
}

func TestGetImageHandler(t *testing.T) {
	f := newFixture(t)

	handle, err := f.store.Create(time.Now(), "job-1", models.Params{Prompt: "x"})
	require.NoError(t, err)
	dir, err := f.store.ImagesDir(handle.ID)
	require.NoError(t, err)
	payload := []byte("not really a png")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "i0c0.png"), payload, 0o644))

	rec, err := imageRequest(t, f, handle.ID, "i0c0.png")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, payload, rec.Body.Bytes())
}

func TestGetImageHandler_Errors(t *testing.T) {
	f := newFixture(t)

	handle, err := f.store.Create(time.Now(), "job-1", models.Params{Prompt: "x"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		sessionID string
		filename  string
		wantCode  int
	}{
		{"traversal filename", handle.ID, "../metadata.json", http.StatusBadRequest},
		{"bad session id", "nope", "i0c0.png", http.StatusBadRequest},
		{"unknown session", "ses-235959", "i0c0.png", http.StatusNotFound},
		{"missing image", handle.ID, "i9c9.png", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := imageRequest(t, f, tt.sessionID, tt.filename)
			require.Error(t, err)
			he, ok := err.(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, he.Code)
		})
	}
}
