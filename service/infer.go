package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/krau/maskpredict/augment"
	"github.com/krau/maskpredict/config"
	"github.com/krau/maskpredict/dataset"
	"github.com/krau/maskpredict/label"
	"golang.org/x/sync/errgroup"
)

// Predictor runs a feature's model over every sample of the test manifest.
type Predictor struct {
	cfg     config.Config
	open    Opener
	samples []dataset.Sample
}

func NewPredictor(cfg config.Config, open Opener) (*Predictor, error) {
	samples, err := dataset.ReadManifest(cfg.TestCSV, cfg.TestDir)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded test manifest", slog.String("path", cfg.TestCSV), slog.Int("samples", len(samples)))
	return &Predictor{cfg: cfg, open: open, samples: samples}, nil
}

func (p *Predictor) Samples() []dataset.Sample {
	return p.samples
}

// Predict runs one pass of feature's model with transform t applied to every
// image.
func (p *Predictor) Predict(ctx context.Context, feature, weights string, t augment.Transform) (Result, error) {
	c, classes, err := p.load(feature, weights)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return p.run(ctx, c, feature, classes, t)
}

// PredictTTA runs one pass per transform followed by a plain pass. The model
// is loaded once for all passes.
func (p *Predictor) PredictTTA(ctx context.Context, feature, weights string, ts []augment.Transform) ([]Result, error) {
	c, classes, err := p.load(feature, weights)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	passes := make([]Result, 0, len(ts)+1)
	for _, t := range append(slices.Clone(ts), augment.Transform{}) {
		res, err := p.run(ctx, c, feature, classes, t)
		if err != nil {
			return nil, err
		}
		passes = append(passes, res)
	}
	return passes, nil
}

func (p *Predictor) load(feature, weights string) (Classifier, int, error) {
	classes, err := label.ClassNum(feature, p.cfg.MergeFeatureName)
	if err != nil {
		return nil, 0, err
	}
	slog.Info("Loading model", slog.String("feature", feature), slog.Int("classes", classes), slog.String("weights", weights))
	c, err := p.open(feature, weights, classes)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load %s model: %w", feature, err)
	}
	return c, classes, nil
}

func (p *Predictor) run(ctx context.Context, c Classifier, feature string, classes int, t augment.Transform) (Result, error) {
	size := Channels * p.cfg.ImageWidth * p.cfg.ImageHeight
	mean, std := p.cfg.Normalization()
	out := make(Result, 0, len(p.samples))

	for start := 0; start < len(p.samples); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := p.samples[start:min(start+p.cfg.BatchSize, len(p.samples))]
		input := make([]float32, len(batch)*size)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.NumWorkers)
		for i, s := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				img, err := dataset.LoadImage(s.Path)
				if err != nil {
					return err
				}
				data, err := Preprocess(t.Apply(img), p.cfg.ImageWidth, p.cfg.ImageHeight, mean, std)
				if err != nil {
					return fmt.Errorf("failed to preprocess %s: %w", s.Path, err)
				}
				copy(input[i*size:(i+1)*size], data)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		scores, err := c.Classify(ctx, input, len(batch))
		if err != nil {
			return nil, err
		}
		if len(scores) != len(batch) {
			return nil, fmt.Errorf("%s model returned %d rows for a batch of %d", feature, len(scores), len(batch))
		}
		for i, s := range batch {
			if len(scores[i]) != classes {
				return nil, fmt.Errorf("%s model returned %d scores, want %d", feature, len(scores[i]), classes)
			}
			probs := Softmax(scores[i])
			out = append(out, Prediction{Path: s.Path, Class: Argmax(probs), Scores: probs})
		}
		slog.Debug("Predicted batch",
			slog.String("feature", feature),
			slog.String("augmentation", t.String()),
			slog.Int("done", len(out)),
			slog.Int("total", len(p.samples)))
	}
	slog.Info("Finished pass", slog.String("feature", feature), slog.String("augmentation", t.String()))
	return out, nil
}
