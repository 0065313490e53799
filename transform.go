package imageloader

import (
	"fmt"
	"image"
	"image/draw"

	apperrors "github.com/yuriy-budiyev/image-loader-sub002/errors"
)

// Transform is a pure image -> image operation applied after decode. ID
// must be stable and encode the transform's parameters: it participates in
// cache keys, so two transforms with the same ID must produce the same
// output for the same input.
type Transform interface {
	ID() string
	Apply(img image.Image) (image.Image, error)
}

func transformIDs(transforms []Transform) []string {
	if len(transforms) == 0 {
		return nil
	}
	ids := make([]string, len(transforms))
	for i, t := range transforms {
		ids[i] = t.ID()
	}
	return ids
}

// applyTransforms runs the chain in order. A failing transform aborts the
// chain without mutating its input image.
func applyTransforms(img image.Image, transforms []Transform) (image.Image, error) {
	current := img
	for _, t := range transforms {
		next, err := t.Apply(current)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindTransform, "transform."+t.ID(), err)
		}
		if next == nil {
			return nil, apperrors.New(apperrors.KindTransform, "transform."+t.ID(),
				fmt.Errorf("transform returned no image"))
		}
		current = next
	}
	return current, nil
}

// Grayscale converts the image to 8-bit grayscale.
type Grayscale struct{}

func (Grayscale) ID() string { return "grayscale" }

func (Grayscale) Apply(img image.Image) (image.Image, error) {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// FlipHorizontal mirrors the image around its vertical axis.
type FlipHorizontal struct{}

func (FlipHorizontal) ID() string { return "flip_h" }

func (FlipHorizontal) Apply(img image.Image) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst, nil
}

// CenterCrop crops the image to Width x Height around its centre. The
// requested region must fit within the image.
type CenterCrop struct {
	Width  int
	Height int
}

func (c CenterCrop) ID() string {
	return fmt.Sprintf("center_crop(%dx%d)", c.Width, c.Height)
}

func (c CenterCrop) Apply(img image.Image) (image.Image, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, apperrors.ErrInvalidDimensions
	}
	b := img.Bounds()
	if c.Width > b.Dx() || c.Height > b.Dy() {
		return nil, fmt.Errorf("crop %dx%d exceeds image %dx%d: %w",
			c.Width, c.Height, b.Dx(), b.Dy(), apperrors.ErrInvalidDimensions)
	}

	x0 := b.Min.X + (b.Dx()-c.Width)/2
	y0 := b.Min.Y + (b.Dy()-c.Height)/2
	dst := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return dst, nil
}
