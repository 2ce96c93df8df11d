// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package server

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/neuralens-dev/neuralens/internal/dispatch"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// maxUploadBytes bounds the multipart form held in memory per request.
const maxUploadBytes = 15 << 20

// registerImageRoute mounts the image-processing endpoint directly on the
// chi router. It is a raw route rather than a huma operation because the
// request is a multipart upload and the response is the processed image
// itself, with provenance carried in headers.
func (s *Server) registerImageRoute() {
	s.router.Post("/v1/images/process", s.handleProcessImage)
}

func (s *Server) handleProcessImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := userFrom(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	req, err := parseProcessRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// Quota gate before any remote work is attempted.
	if err := s.services.Billing().Allow(ctx, user.ID); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.services.Images().Execute(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.services.Billing().RecordUsage(ctx, user.ID); err != nil {
		// The image was produced; losing one usage tick is preferable to
		// failing the request after the work is done.
		slog.Warn("recording usage failed", "user_id", user.ID, "error", err)
	}

	prov := result.Provenance
	w.Header().Set("Processor-Used", string(prov.Processor))
	w.Header().Set("Attempt-Count", strconv.Itoa(prov.TotalAttempts))
	w.Header().Set("Fallback-Occurred", strconv.FormatBool(prov.Fallback))
	w.Header().Set("Content-Type", result.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Image); err != nil {
		slog.Warn("failed to write image response", "error", err)
	}
}

// parseProcessRequest builds a dispatch request from a multipart upload.
// The operation name comes from the "operation" form field (or the query
// string); every other form field is passed through as an operation
// parameter. The image travels in the "image" file part.
func parseProcessRequest(r *http.Request) (dispatch.Request, error) {
	var req dispatch.Request

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, nlerr.Wrap(err, nlerr.CodeServerRequestInvalid, "parsing multipart form")
	}

	req.Operation = r.FormValue("operation")
	if req.Operation == "" {
		req.Operation = r.URL.Query().Get("operation")
	}
	if req.Operation == "" {
		return req, nlerr.New(nlerr.CodeServerRequestInvalid, "operation is required")
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return req, nlerr.Wrap(err, nlerr.CodeServerRequestInvalid, `missing "image" file part`)
	}
	defer file.Close() //nolint:errcheck

	req.Image, err = io.ReadAll(file)
	if err != nil {
		return req, nlerr.Wrap(err, nlerr.CodeServerRequestInvalid, "reading image upload")
	}

	params := make(map[string]string)
	for key, vals := range r.MultipartForm.Value {
		if key == "operation" || len(vals) == 0 {
			continue
		}
		params[key] = vals[0]
	}
	if len(params) > 0 {
		req.Params = params
	}

	return req, nil
}
