// Package weights locates the exported model files for each feature.
package weights

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/krau/maskpredict/config"
)

var (
	ErrNoWeights         = errors.New("no weight files found")
	ErrNoMatchingWeights = errors.New("no matching weights for feature")
)

// List returns the files under dir matching pattern, sorted.
func List(dir, pattern string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to glob weights: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s matching %q", ErrNoWeights, dir, pattern)
	}
	slices.Sort(paths)
	return paths, nil
}

// Match picks the file whose base name names feature. A whole token match
// beats a substring match, so "age" prefers "age_best.onnx" over "image.onnx".
func Match(paths []string, feature string) (string, error) {
	var loose string
	for _, p := range paths {
		base := filepath.Base(p)
		if !strings.Contains(base, feature) {
			continue
		}
		if slices.Contains(tokens(base), feature) {
			return p, nil
		}
		if loose == "" {
			loose = p
		}
	}
	if loose == "" {
		return "", fmt.Errorf("%w %q", ErrNoMatchingWeights, feature)
	}
	return loose, nil
}

func tokens(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
}

// Plan maps each feature to the weight file that serves it.
type Plan struct {
	Merge   bool
	Order   []string
	Weights map[string]string
}

// Locate resolves the weight files for cfg. Features are matched against
// file base names only; directory names do not count.
func Locate(cfg config.Config) (Plan, error) {
	dir := filepath.Join(cfg.ModelDir, cfg.PredictDir)
	paths, err := List(dir, cfg.WeightsGlob)
	if err != nil {
		return Plan{}, err
	}
	slog.Info("Found weight files", slog.String("dir", dir), slog.Int("count", len(paths)))

	if cfg.MergeFeature {
		path, err := Match(paths, cfg.MergeFeatureName)
		if err != nil {
			path = paths[0]
		}
		slog.Info("Using merged weights", slog.String("feature", cfg.MergeFeatureName), slog.String("path", path))
		return Plan{
			Merge:   true,
			Order:   []string{cfg.MergeFeatureName},
			Weights: map[string]string{cfg.MergeFeatureName: path},
		}, nil
	}

	plan := Plan{Order: slices.Clone(cfg.Features), Weights: make(map[string]string, len(cfg.Features))}
	for _, feature := range cfg.Features {
		path, err := Match(paths, feature)
		if err != nil {
			return Plan{}, err
		}
		slog.Info("Using weights", slog.String("feature", feature), slog.String("path", path))
		plan.Weights[feature] = path
	}
	return plan, nil
}
