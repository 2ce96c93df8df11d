// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package openai_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/neuralens-dev/neuralens/internal/dispatch"
	"github.com/neuralens-dev/neuralens/internal/provider/openai"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// editServer fakes the /images/edits endpoint.
func editServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, baseURL string) *openai.Client {
	t.Helper()
	c, err := openai.New(openai.Config{APIKey: "test-key", BaseURL: baseURL})
	require.NoError(t, err)
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.Equal(t, nlerr.CodeServerConfigInvalid, nlerr.CodeOf(err))
}

func TestProcessReturnsDecodedImage(t *testing.T) {
	want := testPNG(t)
	srv := editServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		assert.NotEmpty(t, r.FormValue("prompt"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1700000000,
			"data": []map[string]any{
				{"b64_json": base64.StdEncoding.EncodeToString(want)},
			},
		})
	})

	c := newClient(t, srv.URL)
	out, contentType, err := c.Process(context.Background(), dispatch.Descriptor{
		Operation: "auto_enhance",
		Prompt:    "Enhance this photo.",
	}, testPNG(t), nil)

	require.NoError(t, err)
	assert.Equal(t, want, out)
	assert.Equal(t, "image/png", contentType)
}

func TestProcessStylePromptSuffix(t *testing.T) {
	var gotPrompt string
	srv := editServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		gotPrompt = r.FormValue("prompt")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"b64_json": base64.StdEncoding.EncodeToString(testPNG(t))},
			},
		})
	})

	c := newClient(t, srv.URL)
	_, _, err := c.Process(context.Background(), dispatch.Descriptor{
		Operation: "style_transfer",
		Prompt:    "Rerender artistically.",
	}, testPNG(t), map[string]string{"style": "watercolor"})

	require.NoError(t, err)
	assert.Contains(t, gotPrompt, "watercolor")
}

func TestProcessClassifiesHTTPStatus(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		transient    bool
		nonRetryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"server error", http.StatusInternalServerError, true, false},
		{"bad gateway", http.StatusBadGateway, true, false},
		{"bad request", http.StatusBadRequest, false, true},
		{"unauthorized", http.StatusUnauthorized, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := editServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"message":"scripted failure","type":"test"}}`)
			})

			c := newClient(t, srv.URL)
			_, _, err := c.Process(context.Background(), dispatch.Descriptor{
				Operation: "auto_enhance",
				Prompt:    "Enhance.",
			}, testPNG(t), nil)

			require.Error(t, err)
			assert.Equal(t, tt.transient, nlerr.IsTransient(err), "transient")
			assert.Equal(t, tt.nonRetryable, nlerr.IsNonRetryable(err), "non-retryable")
		})
	}
}

func TestProcessEmptyResponseIsFailedAttempt(t *testing.T) {
	srv := editServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1700000000,"data":[]}`)
	})

	c := newClient(t, srv.URL)
	_, _, err := c.Process(context.Background(), dispatch.Descriptor{
		Operation: "auto_enhance",
		Prompt:    "Enhance.",
	}, testPNG(t), nil)

	require.Error(t, err)
	assert.Equal(t, nlerr.CodeProviderResponseInvalid, nlerr.CodeOf(err))
	// Unclassified response errors are retried, not surfaced.
	assert.False(t, nlerr.IsNonRetryable(err))
}

func TestProcessUndecodableImageIsFailedAttempt(t *testing.T) {
	srv := editServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"b64_json": base64.StdEncoding.EncodeToString([]byte("not an image"))},
			},
		})
	})

	c := newClient(t, srv.URL)
	_, _, err := c.Process(context.Background(), dispatch.Descriptor{
		Operation: "auto_enhance",
		Prompt:    "Enhance.",
	}, testPNG(t), nil)

	require.Error(t, err)
	// The decode error is the innermost coded error in the chain.
	assert.Equal(t, nlerr.CodeImagingDecodeInvalid, nlerr.CodeOf(err))
	assert.False(t, nlerr.IsNonRetryable(err))
}
