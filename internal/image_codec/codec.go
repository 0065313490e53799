// Package image_codec turns encoded image bytes into sized in-memory images.
package image_codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "github.com/yuriy-budiyev/image-loader-sub002/errors"
)

// Decode decodes data, downscaling to fit within targetW x targetH while
// preserving aspect ratio. A non-positive target dimension is treated as
// unconstrained; images are never upscaled. The retained pixel buffer
// scales with the requested size, not the source size.
func Decode(data []byte, targetW, targetH int) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.KindDecode, "decode", apperrors.ErrEmptyInput)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			err = apperrors.ErrUnsupportedFormat
		}
		return nil, apperrors.New(apperrors.KindDecode, "decode.sniff", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.New(apperrors.KindDecode, fmt.Sprintf("decode.%s", format), err)
	}

	w, h := fitWithin(cfg.Width, cfg.Height, targetW, targetH)
	if w < cfg.Width || h < cfg.Height {
		img = Scale(img, w, h)
	}
	return img, nil
}

// fitWithin computes the largest dimensions within (maxW, maxH) keeping
// the source aspect ratio. Non-positive bounds are unconstrained.
func fitWithin(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}

	ratio := 1.0
	if maxW > 0 && srcW > maxW {
		ratio = float64(maxW) / float64(srcW)
	}
	if maxH > 0 && srcH > maxH {
		if r := float64(maxH) / float64(srcH); r < ratio {
			ratio = r
		}
	}
	if ratio >= 1.0 {
		return srcW, srcH
	}

	w := int(float64(srcW)*ratio + 0.5)
	h := int(float64(srcH)*ratio + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Scale resamples img to exactly w x h.
func Scale(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// EstimateSize returns the approximate retained byte size of a decoded
// image, used for memory cache accounting.
func EstimateSize(img image.Image) int64 {
	switch im := img.(type) {
	case *image.RGBA:
		return int64(len(im.Pix))
	case *image.NRGBA:
		return int64(len(im.Pix))
	case *image.Gray:
		return int64(len(im.Pix))
	case *image.CMYK:
		return int64(len(im.Pix))
	case *image.Paletted:
		return int64(len(im.Pix))
	case *image.YCbCr:
		return int64(len(im.Y) + len(im.Cb) + len(im.Cr))
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
