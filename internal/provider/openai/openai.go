// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package openai implements the remote image-edit client on the OpenAI
// Images API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/neuralens-dev/neuralens/internal/dispatch"
	"github.com/neuralens-dev/neuralens/internal/imaging"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// DefaultModel is the image model used for edits.
const DefaultModel = openaisdk.ImageModelGPTImage1

// Config holds OpenAI client configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string // optional, defaults to DefaultModel
}

// Client implements dispatch.RemoteClient using the OpenAI image-edit
// endpoint: multipart upload with the edit prompt, base64 image back.
type Client struct {
	client openaisdk.Client
	model  string
}

var _ dispatch.RemoteClient = (*Client)(nil)

// New creates an OpenAI client. Returns an error if the API key is missing.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, nlerr.New(nlerr.CodeServerConfigInvalid, "openai: missing api_key in config",
			nlerr.FieldProvider("openai"))
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: openaisdk.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *Client) Name() string { return "openai" }

// Process sends one edit request and returns the edited image bytes.
func (c *Client) Process(ctx context.Context, desc dispatch.Descriptor, image []byte, params map[string]string) ([]byte, string, error) {
	prompt := desc.Prompt
	if style, ok := params["style"]; ok && style != "" {
		prompt += " Target style: " + style + "."
	}

	resp, err := c.client.Images.Edit(ctx, openaisdk.ImageEditParams{
		Image: openaisdk.ImageEditParamsImageUnion{
			OfFile: openaisdk.File(bytes.NewReader(image), "input.png", "image/png"),
		},
		Prompt: prompt,
		Model:  openaisdk.ImageModel(c.model),
	})
	if err != nil {
		return nil, "", classify(err, desc.Operation)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, "", nlerr.Errorf(nlerr.CodeProviderResponseInvalid,
			"openai: response carried no image for operation %q", desc.Operation)
	}

	out, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, "", nlerr.Wrapf(err, nlerr.CodeProviderResponseInvalid,
			"openai: invalid base64 image for operation %q", desc.Operation)
	}

	_, format, err := imaging.Decode(out)
	if err != nil {
		return nil, "", nlerr.Wrapf(err, nlerr.CodeProviderResponseInvalid,
			"openai: undecodable image in response for operation %q", desc.Operation)
	}
	return out, "image/" + format, nil
}

// classify maps SDK errors onto the retry taxonomy: rate limits, server
// errors, and transport failures are transient; other 4xx rejections are
// non-retryable.
func classify(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return nlerr.Wrapf(err, nlerr.CodeProviderAttemptTimeout, "openai: %s timed out", operation)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || apiErr.StatusCode == 408 || apiErr.StatusCode >= 500:
			return nlerr.Wrapf(err, nlerr.CodeProviderRemoteTransient,
				"openai: %s failed upstream (%d)", operation, apiErr.StatusCode)
		case apiErr.StatusCode >= 400:
			return nlerr.Wrapf(err, nlerr.CodeProviderRemoteNonRetryable,
				"openai: %s rejected (%d)", operation, apiErr.StatusCode)
		}
	}

	return nlerr.Wrapf(err, nlerr.CodeProviderRemoteTransient, "openai: %s failed", operation)
}
