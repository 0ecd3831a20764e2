package service

import (
	"errors"
	"image"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
)

const Channels = 3

func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	peak := logits[0]
	for _, v := range logits[1:] {
		peak = math32.Max(peak, v)
	}
	var sum float32
	for i, v := range logits {
		out[i] = math32.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the first index holding the largest value, or -1 for an
// empty slice.
func Argmax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i, x := range v[1:] {
		if x > v[best] {
			best = i + 1
		}
	}
	return best
}

// Preprocess resizes img to width x height and normalizes it into CHW order.
func Preprocess(img image.Image, width, height int, mean, std [3]float32) ([]float32, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	img = imaging.Resize(img, width, height, imaging.Lanczos)

	plane := width * height
	out := make([]float32, Channels*plane)
	rBase := 0
	gBase := plane
	bBase := 2 * plane

	b := img.Bounds()
	for y := range height {
		for x := range width {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			fr := float32(r) / 65535.0
			fg := float32(g) / 65535.0
			fb := float32(bl) / 65535.0

			out[rBase] = (fr - mean[0]) / std[0]
			out[gBase] = (fg - mean[1]) / std[1]
			out[bBase] = (fb - mean[2]) / std[2]

			rBase++
			gBase++
			bBase++
		}
	}
	return out, nil
}
