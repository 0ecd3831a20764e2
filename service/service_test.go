package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/krau/maskpredict/augment"
	"github.com/krau/maskpredict/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brightness classifier: class 1 for images brighter than the mean.
type fakeClassifier struct {
	mu      sync.Mutex
	classes int
	calls   []int
	closed  bool
	size    int
}

func (f *fakeClassifier) Classify(_ context.Context, input []float32, n int) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, n)
	f.mu.Unlock()
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = make([]float32, f.classes)
		if input[i*f.size] > 0 {
			rows[i][1] = 5
		} else {
			rows[i][0] = 5
		}
	}
	return rows, nil
}

func (f *fakeClassifier) Close() error {
	f.closed = true
	return nil
}

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	for y := range 4 {
		for x := range 6 {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// fixture writes n images alternating white and black.
func fixture(t *testing.T, n int) config.Config {
	t.Helper()
	dir := t.TempDir()
	imgDir := filepath.Join(dir, "images")
	require.NoError(t, os.Mkdir(imgDir, 0o755))
	var sb strings.Builder
	sb.WriteString("ImageID,ans\n")
	for i := range n {
		name := fmt.Sprintf("img%02d.png", i)
		c := color.Color(color.White)
		if i%2 == 1 {
			c = color.Black
		}
		writePNG(t, filepath.Join(imgDir, name), c)
		fmt.Fprintf(&sb, "%s,0\n", name)
	}
	csvPath := filepath.Join(dir, "info.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sb.String()), 0o644))

	cfg := config.Default()
	cfg.TestCSV = csvPath
	cfg.TestDir = imgDir
	cfg.BatchSize = 3
	cfg.NumWorkers = 2
	cfg.ImageWidth = 4
	cfg.ImageHeight = 4
	return cfg
}

func TestPredictBatchesInOrder(t *testing.T) {
	cfg := fixture(t, 7)
	fake := &fakeClassifier{size: Channels * 16}
	var gotClasses int
	p, err := NewPredictor(cfg, func(feature, weights string, classes int) (Classifier, error) {
		assert.Equal(t, "gender", feature)
		assert.Equal(t, "gender.onnx", weights)
		gotClasses = classes
		fake.classes = classes
		return fake, nil
	})
	require.NoError(t, err)
	require.Len(t, p.Samples(), 7)

	res, err := p.Predict(context.Background(), "gender", "gender.onnx", augment.Transform{})
	require.NoError(t, err)
	assert.Equal(t, 2, gotClasses)
	assert.Equal(t, []int{3, 3, 1}, fake.calls)
	assert.True(t, fake.closed)

	require.Len(t, res, 7)
	assert.Equal(t, []int{1, 0, 1, 0, 1, 0, 1}, res.Classes())
	for i, pred := range res {
		assert.Equal(t, fmt.Sprintf("img%02d.png", i), filepath.Base(pred.Path))
		require.Len(t, pred.Scores, 2)
		assert.InDelta(t, 1.0, pred.Scores[0]+pred.Scores[1], 1e-5)
	}
}

func TestPredictTTAPassOrder(t *testing.T) {
	cfg := fixture(t, 4)
	fake := &fakeClassifier{size: Channels * 16}
	opened := 0
	p, err := NewPredictor(cfg, func(_, _ string, classes int) (Classifier, error) {
		opened++
		fake.classes = classes
		return fake, nil
	})
	require.NoError(t, err)

	ts, err := augment.Parse([]string{augment.HFlip, augment.VFlip})
	require.NoError(t, err)
	passes, err := p.PredictTTA(context.Background(), "mask", "mask.onnx", ts)
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
	require.Len(t, passes, 3)
	for _, pass := range passes {
		assert.Equal(t, []int{1, 0, 1, 0}, pass.Classes())
	}
	assert.Len(t, ts, 2)
}

func TestPredictUnknownFeature(t *testing.T) {
	cfg := fixture(t, 1)
	p, err := NewPredictor(cfg, func(_, _ string, _ int) (Classifier, error) {
		t.Fatal("opener must not be called")
		return nil, nil
	})
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), "hat", "hat.onnx", augment.Transform{})
	assert.Error(t, err)
}

func TestPredictOpenError(t *testing.T) {
	cfg := fixture(t, 1)
	boom := errors.New("boom")
	p, err := NewPredictor(cfg, func(_, _ string, _ int) (Classifier, error) { return nil, boom })
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), "age", "age.onnx", augment.Transform{})
	assert.ErrorIs(t, err, boom)
}

func TestPredictMissingImage(t *testing.T) {
	cfg := fixture(t, 2)
	require.NoError(t, os.Remove(filepath.Join(cfg.TestDir, "img01.png")))
	fake := &fakeClassifier{size: Channels * 16}
	p, err := NewPredictor(cfg, func(_, _ string, classes int) (Classifier, error) {
		fake.classes = classes
		return fake, nil
	})
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), "age", "age.onnx", augment.Transform{})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.True(t, fake.closed)
}

func TestPredictCancelled(t *testing.T) {
	cfg := fixture(t, 2)
	fake := &fakeClassifier{size: Channels * 16}
	p, err := NewPredictor(cfg, func(_, _ string, classes int) (Classifier, error) {
		fake.classes = classes
		return fake, nil
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Predict(ctx, "age", "age.onnx", augment.Transform{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSoftmaxAndArgmax(t *testing.T) {
	p := Softmax([]float32{1, 3, 2})
	var sum float32
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Equal(t, 1, Argmax(p))
	assert.Greater(t, p[2], p[0])

	assert.Equal(t, 0, Argmax([]float32{2, 2}))
	assert.Equal(t, -1, Argmax(nil))
	assert.Empty(t, Softmax(nil))

	big := Softmax([]float32{1000, 0})
	assert.InDelta(t, 1.0, big[0], 1e-6)
}

func TestPreprocess(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, color.White)
		}
	}
	mean := [3]float32{0.5, 0.5, 0.5}
	std := [3]float32{0.5, 0.5, 0.5}
	out, err := Preprocess(img, 2, 3, mean, std)
	require.NoError(t, err)
	require.Len(t, out, Channels*6)
	for _, v := range out {
		assert.InDelta(t, 1.0, v, 0.02)
	}

	_, err = Preprocess(nil, 2, 2, mean, std)
	assert.Error(t, err)
}
