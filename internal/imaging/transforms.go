// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

// Package imaging holds the local, deterministic image transforms used when
// a remote provider is unavailable. They are placeholder-quality on purpose:
// fast, network-free approximations of the remote edits, not ML inference.
package imaging

import (
	"image"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Transform is a pure local image edit. Implementations must not touch the
// network and must leave the input image unmodified.
type Transform func(img image.Image) (image.Image, error)

// nearWhite is the per-channel threshold above which a pixel is treated as
// background by RemoveBackground.
const nearWhite = 240

// AutoEnhance applies a contrast boost (1.2x around the mean luminance)
// followed by a sharpness boost (1.3x unsharp blend).
func AutoEnhance(img image.Image) (image.Image, error) {
	src, err := checked(img)
	if err != nil {
		return nil, err
	}

	out := adjustContrast(src, 1.2)
	out = adjustSharpness(out, 1.3)
	return out, nil
}

// RemoveBackground makes near-white pixels fully transparent. The result
// always carries an alpha channel.
func RemoveBackground(img image.Image) (image.Image, error) {
	src, err := checked(img)
	if err != nil {
		return nil, err
	}

	out := cloneRGBA(src)
	px := out.Pix
	for i := 0; i < len(px); i += 4 {
		if px[i] > nearWhite && px[i+1] > nearWhite && px[i+2] > nearWhite {
			px[i+3] = 0
		}
	}
	return out, nil
}

// RetouchFace smooths the image with a small gaussian blur, mimicking skin
// smoothing.
func RetouchFace(img image.Image) (image.Image, error) {
	src, err := checked(img)
	if err != nil {
		return nil, err
	}
	return gaussianBlur(src), nil
}

// EraseObject returns an unmodified copy. Real inpainting needs a mask from
// the client, which the remote providers handle; locally this is a no-op.
func EraseObject(img image.Image) (image.Image, error) {
	src, err := checked(img)
	if err != nil {
		return nil, err
	}
	return cloneRGBA(src), nil
}

// ReplaceSky tints the image toward blue by boosting the blue channel 10%.
func ReplaceSky(img image.Image) (image.Image, error) {
	src, err := checked(img)
	if err != nil {
		return nil, err
	}

	out := cloneRGBA(src)
	px := out.Pix
	for i := 2; i < len(px); i += 4 {
		px[i] = clamp8(int32(px[i]) * 11 / 10)
	}
	return out, nil
}

// SuperResolve upscales the image 2x with bilinear resampling.
func SuperResolve(img image.Image) (image.Image, error) {
	src, err := checked(img)
	if err != nil {
		return nil, err
	}
	return resizeBilinear(src, src.Bounds().Dx()*2, src.Bounds().Dy()*2), nil
}

// TransferStyle applies an edge-enhancing convolution for a pseudo-artistic
// look.
func TransferStyle(img image.Image) (image.Image, error) {
	src, err := checked(img)
	if err != nil {
		return nil, err
	}

	kernel := [9]int32{
		-1, -1, -1,
		-1, 9, -1,
		-1, -1, -1,
	}
	return convolve3x3(src, kernel, 1), nil
}

// checked normalizes the input and rejects degenerate images.
func checked(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, nlerr.New(nlerr.CodeImagingTransformFailure, "nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, nlerr.Errorf(nlerr.CodeImagingTransformFailure, "degenerate image bounds %v", b)
	}
	return ToRGBA(img), nil
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.Pix)
	return out
}

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// adjustContrast interpolates each channel between the mean luminance and
// the original value: out = mean + factor*(px - mean). Factor 1 is identity.
func adjustContrast(src *image.RGBA, factor float64) *image.RGBA {
	px := src.Pix
	var sum, n int64
	for i := 0; i < len(px); i += 4 {
		// ITU-R 601 luma, integer approximation.
		sum += int64(299*int32(px[i])+587*int32(px[i+1])+114*int32(px[i+2])) / 1000
		n++
	}
	if n == 0 {
		return cloneRGBA(src)
	}
	mean := float64(sum) / float64(n)

	out := cloneRGBA(src)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := mean + factor*(float64(out.Pix[i+c])-mean)
			out.Pix[i+c] = clamp8(int32(v + 0.5))
		}
	}
	return out
}

// adjustSharpness interpolates between a smoothed copy and the original:
// out = blur + factor*(px - blur). Factor 1 is identity, >1 sharpens.
func adjustSharpness(src *image.RGBA, factor float64) *image.RGBA {
	blurred := gaussianBlur(src)
	out := cloneRGBA(src)
	for i := 0; i < len(out.Pix); i++ {
		if i%4 == 3 {
			continue // leave alpha alone
		}
		v := float64(blurred.Pix[i]) + factor*(float64(src.Pix[i])-float64(blurred.Pix[i]))
		out.Pix[i] = clamp8(int32(v + 0.5))
	}
	return out
}

// gaussianBlur applies a 3x3 gaussian kernel (radius-1 approximation).
func gaussianBlur(src *image.RGBA) *image.RGBA {
	kernel := [9]int32{
		1, 2, 1,
		2, 4, 2,
		1, 2, 1,
	}
	return convolve3x3(src, kernel, 16)
}

// convolve3x3 applies a 3x3 kernel with the given divisor to the color
// channels, clamping edges and preserving alpha.
func convolve3x3(src *image.RGBA, kernel [9]int32, divisor int32) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl int32
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sx := clampInt(x+kx, 0, w-1)
					sy := clampInt(y+ky, 0, h-1)
					k := kernel[(ky+1)*3+(kx+1)]
					o := src.PixOffset(b.Min.X+sx, b.Min.Y+sy)
					r += k * int32(src.Pix[o])
					g += k * int32(src.Pix[o+1])
					bl += k * int32(src.Pix[o+2])
				}
			}
			o := out.PixOffset(x, y)
			out.Pix[o] = clamp8(r / divisor)
			out.Pix[o+1] = clamp8(g / divisor)
			out.Pix[o+2] = clamp8(bl / divisor)
			out.Pix[o+3] = src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)+3]
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// resizeBilinear scales src to the requested dimensions with bilinear
// interpolation.
func resizeBilinear(src *image.RGBA, dw, dh int) *image.RGBA {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < dh; y++ {
		fy := float64(y) * float64(sh-1) / float64(max(dh-1, 1))
		y0 := int(fy)
		y1 := clampInt(y0+1, 0, sh-1)
		wy := fy - float64(y0)

		for x := 0; x < dw; x++ {
			fx := float64(x) * float64(sw-1) / float64(max(dw-1, 1))
			x0 := int(fx)
			x1 := clampInt(x0+1, 0, sw-1)
			wx := fx - float64(x0)

			o00 := src.PixOffset(b.Min.X+x0, b.Min.Y+y0)
			o10 := src.PixOffset(b.Min.X+x1, b.Min.Y+y0)
			o01 := src.PixOffset(b.Min.X+x0, b.Min.Y+y1)
			o11 := src.PixOffset(b.Min.X+x1, b.Min.Y+y1)

			do := out.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				top := float64(src.Pix[o00+c])*(1-wx) + float64(src.Pix[o10+c])*wx
				bot := float64(src.Pix[o01+c])*(1-wx) + float64(src.Pix[o11+c])*wx
				out.Pix[do+c] = clamp8(int32(top*(1-wy) + bot*wy + 0.5))
			}
		}
	}
	return out
}
