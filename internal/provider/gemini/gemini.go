// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package gemini implements the remote image-edit client on the Google
// Gemini API.
package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/neuralens-dev/neuralens/internal/dispatch"
	"github.com/neuralens-dev/neuralens/internal/imaging"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// DefaultModel is the image-generation model used for edits.
const DefaultModel = "gemini-2.5-flash-image-preview"

// Config holds Gemini client configuration.
type Config struct {
	APIKey  string
	Model   string // optional, defaults to DefaultModel
	BaseURL string // optional, useful for testing against a mock server
}

// Client implements dispatch.RemoteClient using the Gemini API: the input
// image goes up as inline bytes next to the edit prompt, the edited image
// comes back as inline bytes.
type Client struct {
	client *genai.Client
	model  string
}

var _ dispatch.RemoteClient = (*Client)(nil)

// New creates a Gemini client. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "gemini: missing api_key in config",
			nlerr.FieldProvider("gemini"))
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, nlerr.Wrapf(err, nlerr.CodeProviderRemoteTransient, "gemini: creating client")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{client: client, model: model}, nil
}

func (c *Client) Name() string { return "gemini" }

// Process sends one edit request and returns the edited image bytes.
func (c *Client) Process(ctx context.Context, desc dispatch.Descriptor, image []byte, params map[string]string) ([]byte, string, error) {
	prompt := desc.Prompt
	if style, ok := params["style"]; ok && style != "" {
		prompt += " Target style: " + style + "."
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{MIMEType: sniffMIME(image), Data: image}},
			},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, "", classify(err, desc.Operation)
	}

	out, mime := firstInlineImage(resp)
	if out == nil {
		return nil, "", nlerr.Errorf(nlerr.CodeProviderResponseInvalid,
			"gemini: response carried no image for operation %q", desc.Operation)
	}

	// Validate before reporting success; an undecodable payload is a
	// failed attempt, not a success.
	if _, _, err := imaging.Decode(out); err != nil {
		return nil, "", nlerr.Wrapf(err, nlerr.CodeProviderResponseInvalid,
			"gemini: undecodable image in response for operation %q", desc.Operation)
	}
	return out, mime, nil
}

// firstInlineImage walks the candidates for the first inline image part.
func firstInlineImage(resp *genai.GenerateContentResponse) ([]byte, string) {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return part.InlineData.Data, mime
			}
		}
	}
	return nil, ""
}

// classify maps SDK errors onto the retry taxonomy: rate limits, server
// errors, and transport failures are transient; other 4xx rejections are
// non-retryable.
func classify(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return nlerr.Wrapf(err, nlerr.CodeProviderAttemptTimeout, "gemini: %s timed out", operation)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code == 408 || apiErr.Code >= 500:
			return nlerr.Wrapf(err, nlerr.CodeProviderRemoteTransient,
				"gemini: %s failed upstream (%d)", operation, apiErr.Code)
		case apiErr.Code >= 400:
			return nlerr.Wrapf(err, nlerr.CodeProviderRemoteNonRetryable,
				"gemini: %s rejected (%d)", operation, apiErr.Code)
		}
	}

	// Transport-level failures are worth retrying.
	return nlerr.Wrapf(err, nlerr.CodeProviderRemoteTransient, "gemini: %s failed", operation)
}

// sniffMIME distinguishes the two formats the dispatcher normalizes to.
func sniffMIME(data []byte) string {
	if len(data) >= 8 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return "image/png"
	}
	return "image/jpeg"
}
