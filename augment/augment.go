// Package augment provides the image transforms used for test-time augmentation.
package augment

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	HFlip      = "hflip"
	VFlip      = "vflip"
	Brightness = "brightness"
	Contrast   = "contrast"
	Rotate     = "rotate"
	CenterCrop = "center_crop"
)

type Transform struct {
	Name string
	fn   func(image.Image) image.Image
}

var registry = map[string]func(image.Image) image.Image{
	HFlip: func(img image.Image) image.Image { return imaging.FlipH(img) },
	VFlip: func(img image.Image) image.Image { return imaging.FlipV(img) },
	Brightness: func(img image.Image) image.Image {
		return imaging.AdjustBrightness(img, 10)
	},
	Contrast: func(img image.Image) image.Image {
		return imaging.AdjustContrast(img, 10)
	},
	Rotate: func(img image.Image) image.Image {
		return imaging.Rotate(img, 10, color.Black)
	},
	// keeps the central 80% of each side
	CenterCrop: func(img image.Image) image.Image {
		b := img.Bounds()
		return imaging.CropCenter(img, max(1, b.Dx()*4/5), max(1, b.Dy()*4/5))
	},
}

// Names lists every known transform.
func Names() []string {
	return []string{HFlip, VFlip, Brightness, Contrast, Rotate, CenterCrop}
}

// Get returns the named transform.
func Get(name string) (Transform, error) {
	fn, ok := registry[name]
	if !ok {
		return Transform{}, fmt.Errorf("unknown augmentation %q", name)
	}
	return Transform{Name: name, fn: fn}, nil
}

// Parse resolves names in order.
func Parse(names []string) ([]Transform, error) {
	out := make([]Transform, 0, len(names))
	for _, n := range names {
		t, err := Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Apply runs t on img. The zero Transform is the identity.
func (t Transform) Apply(img image.Image) image.Image {
	if t.fn == nil {
		return img
	}
	return t.fn(img)
}

func (t Transform) String() string {
	if t.Name == "" {
		return "none"
	}
	return t.Name
}
