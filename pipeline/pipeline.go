// Package pipeline wires weight lookup, prediction, aggregation and the
// submission writer into a single run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/krau/maskpredict/augment"
	"github.com/krau/maskpredict/config"
	"github.com/krau/maskpredict/ensemble"
	"github.com/krau/maskpredict/service"
	"github.com/krau/maskpredict/submission"
	"github.com/krau/maskpredict/weights"
)

// Run predicts the test set described by cfg and writes the submission,
// returning its path. now stamps the file name.
func Run(ctx context.Context, cfg config.Config, open service.Opener, now time.Time) (string, error) {
	start := time.Now()
	slog.Info("Starting prediction",
		slog.String("model", cfg.ModelName),
		slog.String("device", cfg.Device),
		slog.Bool("merge", cfg.MergeFeature),
		slog.Bool("tta", cfg.TTA),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("num_epoch", cfg.NumEpoch))

	plan, err := weights.Locate(cfg)
	if err != nil {
		return "", err
	}

	// a merged model always runs a single plain pass
	tta := cfg.TTA && !plan.Merge
	var transforms []augment.Transform
	if tta {
		transforms, err = augment.Parse(cfg.TTAAugmentations)
		if err != nil {
			return "", err
		}
	}

	predictor, err := service.NewPredictor(cfg, open)
	if err != nil {
		return "", err
	}

	results := make([]service.FeatureResult, 0, len(plan.Order))
	for _, feature := range plan.Order {
		passes, err := predictFeature(ctx, predictor, feature, plan.Weights[feature], tta, transforms)
		if err != nil {
			return "", fmt.Errorf("failed to predict %s: %w", feature, err)
		}
		results = append(results, service.FeatureResult{Feature: feature, Passes: passes})
	}

	rows, err := ensemble.Aggregate(results, plan.Merge)
	if err != nil {
		return "", err
	}

	path, err := submission.Write(cfg.OutputDir, cfg.ModelName, now, rows)
	if err != nil {
		return "", err
	}
	slog.Info("Wrote submission",
		slog.String("path", path),
		slog.Int("rows", len(rows)),
		slog.String("elapsed", time.Since(start).Round(time.Millisecond).String()))
	return path, nil
}

func predictFeature(ctx context.Context, p *service.Predictor, feature, weights string, tta bool, ts []augment.Transform) ([]service.Result, error) {
	if tta {
		return p.PredictTTA(ctx, feature, weights, ts)
	}
	res, err := p.Predict(ctx, feature, weights, augment.Transform{})
	if err != nil {
		return nil, err
	}
	return []service.Result{res}, nil
}
