// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package dispatch

import "github.com/neuralens-dev/neuralens/internal/imaging"

// DefaultRegistry returns the built-in operation catalog: the seven photo
// edits the app exposes, each with its remote edit prompt and its local
// deterministic fallback.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Operation{
			Name:    "auto_enhance",
			Summary: "Boost contrast and sharpness",
			Remote: Descriptor{
				Operation: "auto_enhance",
				Prompt:    "Enhance this photo: improve contrast, sharpness and color balance while keeping it natural.",
			},
			Fallback: imaging.AutoEnhance,
		},
		Operation{
			Name:    "background_removal",
			Summary: "Remove the background, keeping the subject",
			Remote: Descriptor{
				Operation: "background_removal",
				Prompt:    "Remove the background from this photo, keeping only the main subject with a transparent background.",
			},
			Fallback: imaging.RemoveBackground,
		},
		Operation{
			Name:    "face_retouch",
			Summary: "Smooth and retouch faces",
			Remote: Descriptor{
				Operation: "face_retouch",
				Prompt:    "Retouch the faces in this photo: smooth skin and remove blemishes while keeping a natural look.",
			},
			Fallback: imaging.RetouchFace,
		},
		Operation{
			Name:    "object_eraser",
			Summary: "Erase unwanted objects",
			Remote: Descriptor{
				Operation: "object_eraser",
				Prompt:    "Remove distracting objects from this photo and fill the space naturally.",
			},
			Fallback: imaging.EraseObject,
		},
		Operation{
			Name:    "sky_replacement",
			Summary: "Replace the sky",
			Remote: Descriptor{
				Operation: "sky_replacement",
				Prompt:    "Replace the sky in this photo with a clear vivid blue sky, matching the scene lighting.",
			},
			Fallback: imaging.ReplaceSky,
		},
		Operation{
			Name:    "super_resolution",
			Summary: "Upscale 2x",
			Remote: Descriptor{
				Operation: "super_resolution",
				Prompt:    "Upscale this photo to twice its resolution, adding realistic detail.",
			},
			Fallback: imaging.SuperResolve,
		},
		Operation{
			Name:    "style_transfer",
			Summary: "Apply an artistic style",
			Remote: Descriptor{
				Operation: "style_transfer",
				Prompt:    "Rerender this photo in a painterly artistic style with enhanced edges and texture.",
			},
			Fallback: imaging.TransferStyle,
		},
	)
	if err != nil {
		// The catalog is static; a construction error is a programming bug.
		panic(err)
	}
	return r
}
