package detections

import (
	"testing"

	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fakeSession replays canned outputs and records what it was given.
type fakeSession struct {
	inputs  []models.TensorInfo
	outputs []models.TensorInfo

	results      [][]float32
	resultShapes [][]int64
	runErr       error

	runs      int
	lastInput *models.Tensor
	destroyed bool
}

func (f *fakeSession) Inputs() []models.TensorInfo  { return f.inputs }
func (f *fakeSession) Outputs() []models.TensorInfo { return f.outputs }

func (f *fakeSession) Run(inputs []*models.Tensor, outputs []*models.Tensor) error {
	f.runs++
	if f.runErr != nil {
		return f.runErr
	}
	f.lastInput = inputs[0].Clone()
	for i := range outputs {
		if i < len(f.results) {
			outputs[i].SetFloat32(f.resultShapes[i], f.results[i])
		}
	}
	return nil
}

func (f *fakeSession) Destroy() error {
	f.destroyed = true
	return nil
}

// withOutput appends an output whose declared and produced shapes match data.
func (f *fakeSession) withOutput(name string, shape []int64, data []float32) *fakeSession {
	f.outputs = append(f.outputs, models.TensorInfo{Name: name, Shape: shape, Type: models.Float32})
	f.results = append(f.results, data)
	f.resultShapes = append(f.resultShapes, shape)
	return f
}

func newFakeSession(inputShape []int64, inputType models.ElementType) *fakeSession {
	return &fakeSession{
		inputs: []models.TensorInfo{{Name: "input", Shape: inputShape, Type: inputType}},
	}
}

func loaderFor(s *fakeSession) SessionLoader {
	return func(string) (Session, error) { return s, nil }
}

func failingLoader(string) (Session, error) {
	return nil, errors.New("model file is corrupt")
}

func testContext(t *testing.T) *chain.Context {
	return chain.NewContext(zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)))
}

func solidFrame(width, height int, rgba [4]byte) models.Frame {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		copy(pix[i:i+4], rgba[:])
	}
	return models.Frame{Width: width, Height: height, Channels: 4, Pixels: pix}
}

func graySource(width, height int) *chain.ImageSource {
	return chain.NewImageSource().SetFrame(solidFrame(width, height, [4]byte{128, 128, 128, 255}))
}

// gradientSource varies every channel across the frame so resampling blends texels.
func gradientSource(width, height int) *chain.ImageSource {
	pix := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			pix[i] = byte(x * 255 / max(1, width-1))
			pix[i+1] = byte(y * 255 / max(1, height-1))
			pix[i+2] = byte((x + y) * 7)
			pix[i+3] = 255
		}
	}
	return chain.NewImageSource().SetFrame(models.Frame{Width: width, Height: height, Channels: 4, Pixels: pix})
}

func cpuView(f models.Frame) PixelView {
	return PixelView{
		Width:    f.Width,
		Height:   f.Height,
		Stride:   f.Stride(),
		Channels: f.Channels,
		Order:    OrderRGBA,
		Pixels:   f.Pixels,
	}
}
