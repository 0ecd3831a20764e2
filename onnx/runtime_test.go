package onnx

import (
	"runtime"
	"testing"

	"github.com/krau/maskpredict/config"
	"github.com/stretchr/testify/assert"
)

func TestLibPathPrefersConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Libonnx = "/opt/ort/libonnxruntime.so.1.23.2"
	assert.Equal(t, cfg.Libonnx, LibPath(cfg))
}

func TestLibPathDefault(t *testing.T) {
	path := LibPath(config.Default())
	switch runtime.GOOS {
	case "linux":
		assert.Contains(t, path, "libonnxruntime.so")
	case "darwin":
		assert.Equal(t, "/usr/local/lib/libonnxruntime.dylib", path)
	}
}

func TestSessionOptionsRejectsBadDevice(t *testing.T) {
	cfg := config.Default()
	cfg.Device = "tpu:0"
	_, err := SessionOptions(cfg)
	assert.Error(t, err)
}
