package screenshot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureDesktopAndMobile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CaptureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(CaptureResult{
			ScreenshotURL: "https://storage.example.com/" + req.Viewport + ".png",
			Bytes:         1024,
		})
	}))
	defer srv.Close()

	c := NewClient(config.ScreenshotConfig{BaseURL: srv.URL, Timeout: time.Second, MaxAttempts: 1})
	pair, err := c.Capture(context.Background(), "https://example.com", true)
	require.NoError(t, err)
	assert.Contains(t, pair.Desktop.ScreenshotURL, "desktop")
	require.NotNil(t, pair.Mobile)
	assert.Contains(t, pair.Mobile.ScreenshotURL, "mobile")
}

func TestCaptureMobileFailureTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CaptureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Viewport == "mobile" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(CaptureResult{ScreenshotURL: "https://storage.example.com/desktop.png"})
	}))
	defer srv.Close()

	c := NewClient(config.ScreenshotConfig{BaseURL: srv.URL, Timeout: time.Second, MaxAttempts: 1})
	pair, err := c.Capture(context.Background(), "https://example.com", true)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Desktop.ScreenshotURL)
	assert.Nil(t, pair.Mobile)
}

func TestCaptureDesktopFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.ScreenshotConfig{BaseURL: srv.URL, Timeout: time.Second, MaxAttempts: 1})
	_, err := c.Capture(context.Background(), "https://example.com", false)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.ScreenshotConfig{BaseURL: srv.URL, Timeout: time.Second, MaxAttempts: 1})
	assert.NoError(t, c.Health(context.Background()))
}
