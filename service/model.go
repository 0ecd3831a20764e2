package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/krau/maskpredict/config"
	"github.com/krau/maskpredict/onnx"
	ort "github.com/yalue/onnxruntime_go"
)

// Model runs an exported classifier through ONNX Runtime. The batch
// dimension of the model must be dynamic.
type Model struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	classes    int
	width      int
	height     int
}

// NewOpener returns an Opener loading ONNX models with cfg's device and
// image size. ONNX Runtime must be initialized first.
func NewOpener(cfg config.Config) Opener {
	return func(feature, weights string, classes int) (Classifier, error) {
		return LoadModel(cfg, weights, classes)
	}
}

func LoadModel(cfg config.Config, path string, classes int) (*Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no inputs or outputs", path)
	}
	dims := outputs[0].Dimensions
	if n := len(dims); n > 0 && dims[n-1] > 0 && dims[n-1] != int64(classes) {
		return nil, fmt.Errorf("model %s predicts %d classes, want %d", path, dims[n-1], classes)
	}

	opts, err := onnx.SessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}
	slog.Debug("Created session",
		slog.String("path", path),
		slog.String("input", inputs[0].Name),
		slog.String("output", outputs[0].Name))

	return &Model{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		classes:    classes,
		width:      cfg.ImageWidth,
		height:     cfg.ImageHeight,
	}, nil
}

func (m *Model) Classify(ctx context.Context, input []float32, n int) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputTensor, err := ort.NewTensor(ort.NewShape(int64(n), Channels, int64(m.height), int64(m.width)), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(n), int64(m.classes)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := m.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	data := outputTensor.GetData()
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = make([]float32, m.classes)
		copy(rows[i], data[i*m.classes:(i+1)*m.classes])
	}
	return rows, nil
}

func (m *Model) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
