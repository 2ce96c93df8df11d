// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package imaging_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/neuralens-dev/neuralens/internal/imaging"
	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// ---------------------------------------------------------------------------
// Decode / Encode
// ---------------------------------------------------------------------------

func TestDecodePNG(t *testing.T) {
	data := pngBytes(t, solidImage(4, 4, color.RGBA{10, 20, 30, 255}))

	img, format, err := imaging.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(6, 3, color.RGBA{200, 100, 50, 255}), nil))

	img, format, err := imaging.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not an image")},
		{"truncated png header", []byte{0x89, 0x50, 0x4e}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := imaging.Decode(tt.data)
			require.Error(t, err)
			assert.True(t, nlerr.IsInvalidInput(err))
			assert.Equal(t, nlerr.CodeImagingDecodeInvalid, nlerr.CodeOf(err))
		})
	}
}

func TestEncodeOpaqueIsJPEG(t *testing.T) {
	data, contentType, err := imaging.Encode(solidImage(4, 4, color.RGBA{1, 2, 3, 255}))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.NotEmpty(t, data)
}

func TestEncodeTransparentIsPNG(t *testing.T) {
	img := solidImage(4, 4, color.RGBA{1, 2, 3, 255})
	img.SetRGBA(0, 0, color.RGBA{1, 2, 3, 0})

	data, contentType, err := imaging.Encode(img)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	decoded, format, err := imaging.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	_, _, _, a := decoded.At(0, 0).RGBA()
	assert.Zero(t, a)
}

func TestEncodeNilImage(t *testing.T) {
	_, _, err := imaging.Encode(nil)
	require.Error(t, err)
	assert.Equal(t, nlerr.CodeImagingEncodeFailure, nlerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Transforms
// ---------------------------------------------------------------------------

func TestRemoveBackgroundClearsNearWhite(t *testing.T) {
	img := solidImage(3, 3, color.RGBA{250, 250, 250, 255})
	img.SetRGBA(1, 1, color.RGBA{10, 10, 10, 255}) // subject pixel

	out, err := imaging.RemoveBackground(img)
	require.NoError(t, err)

	_, _, _, a := out.At(0, 0).RGBA()
	assert.Zero(t, a, "near-white background should be transparent")

	_, _, _, a = out.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), a, "subject pixel should stay opaque")
}

func TestRemoveBackgroundNonSquare(t *testing.T) {
	// Width != height exercises the row/column indexing.
	img := solidImage(7, 3, color.RGBA{255, 255, 255, 255})
	img.SetRGBA(6, 2, color.RGBA{0, 0, 0, 255})

	out, err := imaging.RemoveBackground(img)
	require.NoError(t, err)

	_, _, _, a := out.At(5, 1).RGBA()
	assert.Zero(t, a)
	_, _, _, a = out.At(6, 2).RGBA()
	assert.Equal(t, uint32(0xffff), a)
}

func TestReplaceSkyBoostsBlue(t *testing.T) {
	out, err := imaging.ReplaceSky(solidImage(2, 2, color.RGBA{100, 100, 100, 255}))
	require.NoError(t, err)

	r, g, b, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(100), r>>8)
	assert.Equal(t, uint32(100), g>>8)
	assert.Equal(t, uint32(110), b>>8)
}

func TestReplaceSkyClampsAt255(t *testing.T) {
	out, err := imaging.ReplaceSky(solidImage(1, 1, color.RGBA{0, 0, 250, 255}))
	require.NoError(t, err)

	_, _, b, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(255), b>>8)
}

func TestSuperResolveDoublesDimensions(t *testing.T) {
	out, err := imaging.SuperResolve(solidImage(5, 3, color.RGBA{60, 70, 80, 255}))
	require.NoError(t, err)

	assert.Equal(t, 10, out.Bounds().Dx())
	assert.Equal(t, 6, out.Bounds().Dy())

	// A solid image must stay solid after resampling.
	r, g, b, _ := out.At(7, 4).RGBA()
	assert.Equal(t, uint32(60), r>>8)
	assert.Equal(t, uint32(70), g>>8)
	assert.Equal(t, uint32(80), b>>8)
}

func TestEraseObjectIsIdentity(t *testing.T) {
	src := solidImage(4, 4, color.RGBA{9, 8, 7, 255})
	src.SetRGBA(2, 3, color.RGBA{200, 150, 100, 255})

	out, err := imaging.EraseObject(src)
	require.NoError(t, err)

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, src.RGBAAt(x, y), imaging.ToRGBA(out).RGBAAt(x, y))
		}
	}
}

func TestEraseObjectReturnsCopy(t *testing.T) {
	src := solidImage(2, 2, color.RGBA{1, 1, 1, 255})
	out, err := imaging.EraseObject(src)
	require.NoError(t, err)

	src.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	r, _, _, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(1), r>>8, "transform output must not alias the input")
}

func TestRetouchFaceSmoothsEdges(t *testing.T) {
	// Black field with a single white pixel; blur must pull the white down
	// and its neighbors up.
	img := solidImage(5, 5, color.RGBA{0, 0, 0, 255})
	img.SetRGBA(2, 2, color.RGBA{255, 255, 255, 255})

	out, err := imaging.RetouchFace(img)
	require.NoError(t, err)

	center, _, _, _ := out.At(2, 2).RGBA()
	neighbor, _, _, _ := out.At(2, 1).RGBA()
	assert.Less(t, center>>8, uint32(255))
	assert.Greater(t, neighbor>>8, uint32(0))
}

func TestAutoEnhanceIncreasesContrast(t *testing.T) {
	// Two-tone image: enhancement should push dark darker and light lighter
	// relative to the mean.
	img := solidImage(4, 2, color.RGBA{100, 100, 100, 255})
	for x := 0; x < 4; x++ {
		img.SetRGBA(x, 1, color.RGBA{180, 180, 180, 255})
	}

	out, err := imaging.AutoEnhance(img)
	require.NoError(t, err)

	dark, _, _, _ := out.At(0, 0).RGBA()
	light, _, _, _ := out.At(0, 1).RGBA()
	assert.Less(t, dark>>8, uint32(100))
	assert.Greater(t, light>>8, uint32(180))
}

func TestTransferStylePreservesSolidRegions(t *testing.T) {
	// Edge enhancement is identity on constant regions (kernel sums to 1).
	out, err := imaging.TransferStyle(solidImage(4, 4, color.RGBA{90, 120, 150, 255}))
	require.NoError(t, err)

	r, g, b, _ := out.At(2, 2).RGBA()
	assert.Equal(t, uint32(90), r>>8)
	assert.Equal(t, uint32(120), g>>8)
	assert.Equal(t, uint32(150), b>>8)
}

func TestTransformsRejectNil(t *testing.T) {
	transforms := map[string]imaging.Transform{
		"auto_enhance":       imaging.AutoEnhance,
		"background_removal": imaging.RemoveBackground,
		"face_retouch":       imaging.RetouchFace,
		"object_eraser":      imaging.EraseObject,
		"sky_replacement":    imaging.ReplaceSky,
		"super_resolution":   imaging.SuperResolve,
		"style_transfer":     imaging.TransferStyle,
	}

	for name, fn := range transforms {
		t.Run(name, func(t *testing.T) {
			_, err := fn(nil)
			require.Error(t, err)
			assert.Equal(t, nlerr.CodeImagingTransformFailure, nlerr.CodeOf(err))
		})
	}
}
