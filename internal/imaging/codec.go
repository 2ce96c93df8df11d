// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package imaging

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// jpegQuality is used when re-encoding opaque results.
const jpegQuality = 90

// Decode parses raw upload bytes into an image. PNG and JPEG are accepted;
// anything else (or a corrupt file) is an invalid-input error, never an
// internal failure.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", nlerr.New(nlerr.CodeImagingDecodeInvalid, "empty image payload")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", nlerr.Wrap(err, nlerr.CodeImagingDecodeInvalid, "decoding image")
	}

	switch format {
	case "png", "jpeg":
	default:
		return nil, "", nlerr.Errorf(nlerr.CodeImagingDecodeInvalid, "unsupported image format %q", format)
	}

	return img, format, nil
}

// Encode serializes a processed image. Images carrying transparency are
// written as PNG so the alpha channel survives; everything else is JPEG.
// Returns the bytes and the matching content type.
func Encode(img image.Image) ([]byte, string, error) {
	if img == nil {
		return nil, "", nlerr.New(nlerr.CodeImagingEncodeFailure, "nil image")
	}

	var buf bytes.Buffer
	if hasAlpha(img) {
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", nlerr.Wrap(err, nlerr.CodeImagingEncodeFailure, "encoding png")
		}
		return buf.Bytes(), "image/png", nil
	}

	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", nlerr.Wrap(err, nlerr.CodeImagingEncodeFailure, "encoding jpeg")
	}
	return buf.Bytes(), "image/jpeg", nil
}

// ToRGBA normalizes any decoded image into *image.RGBA so transforms can
// index pixels directly instead of going through the color interface.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// hasAlpha reports whether any pixel is not fully opaque.
func hasAlpha(img image.Image) bool {
	type opaquer interface{ Opaque() bool }
	if o, ok := img.(opaquer); ok {
		return !o.Opaque()
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
