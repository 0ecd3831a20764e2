// Package dataset reads the test manifest and decodes its images.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"
)

// IDColumn is the manifest column holding the image file name.
const IDColumn = "ImageID"

var ErrMissingColumn = errors.New("manifest has no " + IDColumn + " column")

type Sample struct {
	ID   string
	Path string
}

// ReadManifest returns the samples listed in csvPath, in file order.
func ReadManifest(csvPath, imageDir string) ([]Sample, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return ParseManifest(f, imageDir)
}

func ParseManifest(r io.Reader, imageDir string) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == IDColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrMissingColumn
	}

	var samples []Sample
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		if col >= len(rec) {
			return nil, fmt.Errorf("manifest line %d has no %s", len(samples)+2, IDColumn)
		}
		id := strings.TrimSpace(rec[col])
		samples = append(samples, Sample{ID: id, Path: filepath.Join(imageDir, id)})
	}
	return samples, nil
}

// LoadImage decodes a JPEG, PNG, WebP or AVIF file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
