// Package ensemble turns per-feature predictions into compound classes.
package ensemble

import (
	"errors"
	"fmt"

	"github.com/krau/maskpredict/label"
	"github.com/krau/maskpredict/service"
	"github.com/krau/maskpredict/submission"
	"gorgonia.org/tensor"
)

var ErrShapeMismatch = errors.New("prediction shapes do not match")

// Merge pairs each path with the class predicted by a merged model.
func Merge(res service.Result) ([]submission.Row, error) {
	rows := make([]submission.Row, len(res))
	for i, p := range res {
		if _, err := label.Decode(p.Class); err != nil {
			return nil, fmt.Errorf("%s: %w", p.Path, err)
		}
		rows[i] = submission.Row{ImageID: p.Path, Ans: p.Class}
	}
	return rows, nil
}

// Vote returns one class per sample. A single pass is used as is, several
// passes are soft voted.
func Vote(passes []service.Result) ([]int, error) {
	switch len(passes) {
	case 0:
		return nil, fmt.Errorf("%w: no passes", ErrShapeMismatch)
	case 1:
		return passes[0].Classes(), nil
	}
	return SoftVote(passes)
}

// SoftVote averages the class scores of every pass and takes the best class
// per sample.
func SoftVote(passes []service.Result) ([]int, error) {
	if len(passes) == 0 {
		return nil, fmt.Errorf("%w: no passes", ErrShapeMismatch)
	}
	augs, samples := len(passes), len(passes[0])
	if samples == 0 {
		return []int{}, nil
	}
	classes := len(passes[0][0].Scores)
	if classes == 0 {
		return nil, fmt.Errorf("%w: empty scores", ErrShapeMismatch)
	}

	backing := make([]float32, 0, augs*samples*classes)
	for a, pass := range passes {
		if len(pass) != samples {
			return nil, fmt.Errorf("%w: pass %d has %d samples, want %d", ErrShapeMismatch, a, len(pass), samples)
		}
		for i, p := range pass {
			if len(p.Scores) != classes {
				return nil, fmt.Errorf("%w: pass %d sample %d has %d scores, want %d", ErrShapeMismatch, a, i, len(p.Scores), classes)
			}
			if p.Path != passes[0][i].Path {
				return nil, fmt.Errorf("%w: pass %d sample %d is %s, want %s", ErrShapeMismatch, a, i, p.Path, passes[0][i].Path)
			}
			backing = append(backing, p.Scores...)
		}
	}

	// (augmentations, samples, classes)
	stacked := tensor.New(tensor.WithShape(augs, samples, classes), tensor.WithBacking(backing))
	sum, err := stacked.Sum(0)
	if err != nil {
		return nil, fmt.Errorf("failed to sum passes: %w", err)
	}
	mean, err := sum.DivScalar(float32(augs), true)
	if err != nil {
		return nil, fmt.Errorf("failed to average passes: %w", err)
	}
	if err := mean.Reshape(samples, classes); err != nil {
		return nil, fmt.Errorf("failed to reshape mean: %w", err)
	}
	best, err := mean.Argmax(1)
	if err != nil {
		return nil, fmt.Errorf("failed to take argmax: %w", err)
	}
	switch v := best.Data().(type) {
	case []int:
		out := make([]int, len(v))
		copy(out, v)
		return out, nil
	case int:
		return []int{v}, nil
	default:
		return nil, fmt.Errorf("unexpected argmax type %T", v)
	}
}

// Aggregate builds the submission rows. In merge mode results holds a single
// feature predicting the compound class, otherwise mask, gender and age.
func Aggregate(results []service.FeatureResult, merge bool) ([]submission.Row, error) {
	if merge {
		if len(results) != 1 {
			return nil, fmt.Errorf("%w: merge mode needs one feature, got %d", ErrShapeMismatch, len(results))
		}
		return aggregateMerged(results[0])
	}
	return Combine(results)
}

func aggregateMerged(fr service.FeatureResult) ([]submission.Row, error) {
	if len(fr.Passes) != 1 {
		return nil, fmt.Errorf("%w: merged model needs one pass, got %d", ErrShapeMismatch, len(fr.Passes))
	}
	return Merge(fr.Passes[0])
}

// Combine encodes the voted mask, gender and age classes of every sample.
func Combine(results []service.FeatureResult) ([]submission.Row, error) {
	byName := make(map[string]service.FeatureResult, len(results))
	for _, fr := range results {
		byName[fr.Feature] = fr
	}
	votes := make(map[string][]int, 3)
	for _, feature := range []string{label.Mask, label.Gender, label.Age} {
		fr, ok := byName[feature]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s predictions", ErrShapeMismatch, feature)
		}
		v, err := Vote(fr.Passes)
		if err != nil {
			return nil, fmt.Errorf("failed to vote %s: %w", feature, err)
		}
		votes[feature] = v
	}

	ref := byName[label.Mask].Passes[0]
	for _, feature := range []string{label.Gender, label.Age} {
		other := byName[feature].Passes[0]
		if len(other) != len(ref) {
			return nil, fmt.Errorf("%w: %s has %d samples, %s has %d", ErrShapeMismatch, feature, len(other), label.Mask, len(ref))
		}
		for i := range ref {
			if other[i].Path != ref[i].Path {
				return nil, fmt.Errorf("%w: sample %d is %s for %s and %s for %s", ErrShapeMismatch, i, other[i].Path, feature, ref[i].Path, label.Mask)
			}
		}
	}

	rows := make([]submission.Row, len(ref))
	for i, p := range ref {
		class, err := label.Encode(label.Triple{
			Mask:   votes[label.Mask][i],
			Gender: votes[label.Gender][i],
			Age:    votes[label.Age][i],
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Path, err)
		}
		rows[i] = submission.Row{ImageID: p.Path, Ans: class}
	}
	return rows, nil
}
