package service

import (
	"context"
)

// Prediction is the outcome for one test image under one pass.
type Prediction struct {
	Path   string
	Class  int
	Scores []float32
}

// Result holds one pass over the test set, in manifest order.
type Result []Prediction

func (r Result) Classes() []int {
	out := make([]int, len(r))
	for i, p := range r {
		out[i] = p.Class
	}
	return out
}

func (r Result) Paths() []string {
	out := make([]string, len(r))
	for i, p := range r {
		out[i] = p.Path
	}
	return out
}

// FeatureResult groups the passes run for one feature. Without TTA it has a
// single pass.
type FeatureResult struct {
	Feature string
	Passes  []Result
}

// Classifier scores a batch of preprocessed images. input holds n images in
// NCHW order and the returned slice has one row of raw scores per image.
type Classifier interface {
	Classify(ctx context.Context, input []float32, n int) ([][]float32, error)
	Close() error
}

// Opener loads the classifier for feature from weights.
type Opener func(feature, weights string, classes int) (Classifier, error)
