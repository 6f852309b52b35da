package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Tutortoise/vision-inference/config"
	"github.com/Tutortoise/vision-inference/detections"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/stretchr/testify/require"
)

// stubSession answers every run with the same canned outputs.
type stubSession struct {
	input   models.TensorInfo
	outputs []models.TensorInfo
	data    [][]float32
}

func (s *stubSession) Inputs() []models.TensorInfo  { return []models.TensorInfo{s.input} }
func (s *stubSession) Outputs() []models.TensorInfo { return s.outputs }
func (s *stubSession) Destroy() error               { return nil }

func (s *stubSession) Run(_ []*models.Tensor, outputs []*models.Tensor) error {
	for i, out := range outputs {
		out.SetFloat32(s.outputs[i].Shape, s.data[i])
	}
	return nil
}

// stubLoader serves a MoveNet-like or BlazeFace-like session depending on the model path.
func stubLoader(path string) (detections.Session, error) {
	if path == "face.onnx" {
		return newFaceStub(), nil
	}
	return newPoseStub(), nil
}

func newPoseStub() *stubSession {
	data := make([]float32, 51)
	for k := 0; k < models.NumKeypoints; k++ {
		data[k*3] = 0.4
		data[k*3+1] = 0.6
		data[k*3+2] = 0.9
	}
	return &stubSession{
		input:   models.TensorInfo{Name: "input", Shape: []int64{1, 192, 192, 3}, Type: models.Int32},
		outputs: []models.TensorInfo{{Name: "output_0", Shape: []int64{1, 1, 17, 3}, Type: models.Float32}},
		data:    [][]float32{data},
	}
}

// newFaceStub reports one face on anchor 600.
func newFaceStub() *stubSession {
	scores := make([]float32, detections.NumAnchors)
	for i := range scores {
		scores[i] = -10
	}
	regs := make([]float32, detections.NumAnchors*16)
	scores[600] = 5
	regs[600*16+2] = 25.6
	regs[600*16+3] = 25.6
	return &stubSession{
		input: models.TensorInfo{Name: "input", Shape: []int64{1, 128, 128, 3}, Type: models.Float32},
		outputs: []models.TensorInfo{
			{Name: "regressors", Shape: []int64{1, 896, 16}, Type: models.Float32},
			{Name: "classificators", Shape: []int64{1, 896, 1}, Type: models.Float32},
		},
		data: [][]float32{regs, scores},
	}
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.PoolSize = 2
	cfg.Pose.ModelPath = "pose.onnx"
	cfg.Face.ModelPath = "face.onnx"
	return cfg
}

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 120, G: 130, B: 140, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
