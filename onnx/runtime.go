package onnx

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/krau/maskpredict/config"
	ort "github.com/yalue/onnxruntime_go"
)

var linuxCandidates = []string{
	"onnxlibs/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/libonnxruntime.so",
}

// LibPath resolves the ONNX Runtime shared library for cfg.
func LibPath(cfg config.Config) string {
	path := loadLibPath(cfg)
	if path == "" {
		slog.Error("ONNX Runtime library path could not be determined for this OS")
	} else {
		slog.Info("Using ONNX Runtime library", slog.String("path", path))
	}
	return path
}

func loadLibPath(cfg config.Config) string {
	if cfg.Libonnx != "" {
		return cfg.Libonnx
	}
	switch runtime.GOOS {
	case "linux":
		for _, path := range linuxCandidates {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		return linuxCandidates[len(linuxCandidates)-1]
	case "darwin":
		return "/usr/local/lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return ""
	}
}

// Init loads the shared library and the ONNX Runtime environment.
// The returned func tears the environment down.
func Init(cfg config.Config) (func(), error) {
	ort.SetSharedLibraryPath(LibPath(cfg))
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Warn("Failed to destroy ONNX Runtime environment", slog.String("error", err.Error()))
		}
	}, nil
}

// SessionOptions builds session options placing the model on cfg.Device.
// The caller owns the returned options.
func SessionOptions(cfg config.Config) (*ort.SessionOptions, error) {
	device, err := config.ParseDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if !device.CUDA {
		if err := opts.SetIntraOpNumThreads(cfg.NumWorkers); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
		return opts, nil
	}

	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer cudaOpts.Destroy()
	if err := cudaOpts.Update(map[string]string{
		"device_id": strconv.Itoa(device.ID),
	}); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to configure CUDA provider: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("failed to append CUDA provider: %w", err)
	}
	slog.Debug("Using CUDA execution provider", slog.Int("device_id", device.ID))
	return opts, nil
}
