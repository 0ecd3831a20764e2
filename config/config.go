package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/krau/maskpredict/augment"
	"github.com/krau/maskpredict/label"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	TestCSV     string `toml:"test_csv" mapstructure:"test_csv"`
	TestDir     string `toml:"test_dir" mapstructure:"test_dir"`
	ModelDir    string `toml:"model_dir" mapstructure:"model_dir"`
	PredictDir  string `toml:"predict_dir" mapstructure:"predict_dir"`
	WeightsGlob string `toml:"weights_glob" mapstructure:"weights_glob"`
	ModelName   string `toml:"model_name" mapstructure:"model_name"`
	OutputDir   string `toml:"output_dir" mapstructure:"output_dir"`

	BatchSize  int `toml:"batch_size" mapstructure:"batch_size"`
	NumEpoch   int `toml:"num_epoch" mapstructure:"num_epoch"`
	NumWorkers int `toml:"num_workers" mapstructure:"num_workers"`

	Features         []string `toml:"features" mapstructure:"features"`
	MergeFeature     bool     `toml:"merge_feature" mapstructure:"merge_feature"`
	MergeFeatureName string   `toml:"merge_feature_name" mapstructure:"merge_feature_name"`

	TTA              bool     `toml:"tta" mapstructure:"tta"`
	TTAAugmentations []string `toml:"tta_augmentations" mapstructure:"tta_augmentations"`

	Device  string `toml:"device" mapstructure:"device"`
	Libonnx string `toml:"libonnx" mapstructure:"libonnx"`

	ImageWidth  int        `toml:"image_width" mapstructure:"image_width"`
	ImageHeight int        `toml:"image_height" mapstructure:"image_height"`
	Mean        []float32 `toml:"mean" mapstructure:"mean"`
	Std         []float32 `toml:"std" mapstructure:"std"`
}

// Default returns the configuration used when no file overrides a field.
func Default() Config {
	return Config{
		TestCSV:          "input/data/eval/info.csv",
		TestDir:          "input/data/eval/images",
		ModelDir:         "models",
		PredictDir:       "",
		WeightsGlob:      "*.onnx",
		ModelName:        "efficientnet_b3",
		OutputDir:        ".",
		BatchSize:        64,
		NumEpoch:         10,
		NumWorkers:       2,
		Features:         []string{label.Mask, label.Gender, label.Age},
		MergeFeatureName: label.Merged,
		TTAAugmentations: []string{augment.HFlip},
		Device:           "cuda:0",
		ImageWidth:       224,
		ImageHeight:      224,
		Mean:             []float32{0.548, 0.504, 0.479},
		Std:              []float32{0.237, 0.247, 0.246},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be positive, got %d", c.NumWorkers)
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("invalid image size %dx%d", c.ImageWidth, c.ImageHeight)
	}
	if len(c.Mean) != 3 {
		return fmt.Errorf("mean must have 3 entries, got %d", len(c.Mean))
	}
	if len(c.Std) != 3 {
		return fmt.Errorf("std must have 3 entries, got %d", len(c.Std))
	}
	for i, s := range c.Std {
		if s == 0 {
			return fmt.Errorf("std[%d] must not be zero", i)
		}
	}
	if c.ModelName == "" {
		return errors.New("model_name is required")
	}
	if _, err := ParseDevice(c.Device); err != nil {
		return err
	}
	if c.TTA {
		if _, err := augment.Parse(c.TTAAugmentations); err != nil {
			return err
		}
	}
	if c.MergeFeature {
		if c.MergeFeatureName == "" {
			return errors.New("merge_feature_name is required in merge mode")
		}
		return nil
	}
	want := []string{label.Mask, label.Gender, label.Age}
	got := slices.Clone(c.Features)
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		return fmt.Errorf("features must be %s, %s and %s, got %v", label.Mask, label.Gender, label.Age, c.Features)
	}
	return nil
}

// Normalization returns the per-channel mean and std. Validate guarantees
// both have three entries.
func (c Config) Normalization() (mean, std [3]float32) {
	copy(mean[:], c.Mean)
	copy(std[:], c.Std)
	return mean, std
}

type Device struct {
	CUDA bool
	ID   int
}

func (d Device) String() string {
	if d.CUDA {
		return "cuda:" + strconv.Itoa(d.ID)
	}
	return "cpu"
}

// ParseDevice accepts "cpu", "cuda" and "cuda:N".
func ParseDevice(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "cpu":
		return Device{}, nil
	case s == "cuda":
		return Device{CUDA: true}, nil
	case strings.HasPrefix(s, "cuda:"):
		id, err := strconv.Atoi(strings.TrimPrefix(s, "cuda:"))
		if err != nil || id < 0 {
			return Device{}, fmt.Errorf("invalid cuda device %q", s)
		}
		return Device{CUDA: true, ID: id}, nil
	}
	return Device{}, fmt.Errorf("unknown device %q", s)
}
