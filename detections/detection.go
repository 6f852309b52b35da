package detections

import (
	"time"

	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/models"

	"go.uber.org/zap"
)

// Hooks customise a ModelSession for a particular network.
type Hooks interface {
	// OnModelLoaded runs once after the session and tensors are ready.
	OnModelLoaded(m *ModelSession)
	// PrepareInput fills the first input tensor from the frame.
	PrepareInput(view PixelView, input *models.Tensor) error
	// DecodeOutput turns the first output tensor into published results.
	DecodeOutput(output *models.Tensor)
}

type defaultHooks struct{}

func (defaultHooks) OnModelLoaded(*ModelSession) {}

func (defaultHooks) PrepareInput(view PixelView, input *models.Tensor) error {
	return Resample(view, input, RangeUnit)
}

func (defaultHooks) DecodeOutput(*models.Tensor) {}

// ModelSession runs an ONNX model on the frames of an upstream source. It
// owns the backend session and the preallocated input and output tensors,
// and is driven by a single goroutine.
type ModelSession struct {
	name      string
	modelPath string
	input     chain.Source
	loader    SessionLoader
	hooks     Hooks

	session Session
	schema  models.ModelSchema
	inputs  []*models.Tensor
	outputs []*models.Tensor
	loaded  bool

	pixels    PixelAccessor
	timings   models.ProcessingTimings
	completed int64
	logger    *zap.Logger
}

// NewModelSession creates the generic operator, which only exposes raw outputs.
func NewModelSession() *ModelSession {
	return newModelSession("ONNXModel", defaultHooks{})
}

func newModelSession(name string, hooks Hooks) *ModelSession {
	return &ModelSession{
		name:   name,
		hooks:  hooks,
		loader: OpenONNXSession,
		logger: zap.NewNop(),
	}
}

func (m *ModelSession) Name() string { return m.name }

func (m *ModelSession) SetModel(path string) *ModelSession {
	m.modelPath = path
	return m
}

func (m *ModelSession) SetInput(src chain.Source) *ModelSession {
	m.input = src
	return m
}

// SetSessionLoader replaces the backend used by Init.
func (m *ModelSession) SetSessionLoader(loader SessionLoader) *ModelSession {
	if loader != nil {
		m.loader = loader
	}
	return m
}

func (m *ModelSession) Init(ctx *chain.Context) error {
	m.logger = ctx.Log().Named(m.name)
	if m.loaded {
		return nil
	}
	if m.modelPath == "" {
		err := newError(ConfigurationError, "no model path set", nil)
		m.logger.Error("cannot load model", zap.Error(err))
		return err
	}

	session, err := m.loader(m.modelPath)
	if err != nil {
		err = newError(BackendError, "load model "+m.modelPath, err)
		m.logger.Error("cannot load model", zap.Error(err))
		return err
	}

	m.session = session
	m.schema = models.ModelSchema{Inputs: session.Inputs(), Outputs: session.Outputs()}.Resolved()
	m.inputs = make([]*models.Tensor, len(m.schema.Inputs))
	for i, info := range m.schema.Inputs {
		m.inputs[i] = models.NewTensor(info.Shape, info.Type)
		m.logger.Info("model input",
			zap.Int("index", i),
			zap.String("name", info.Name),
			zap.Int64s("shape", info.Shape),
			zap.Stringer("type", info.Type))
	}
	m.outputs = make([]*models.Tensor, len(m.schema.Outputs))
	for i, info := range m.schema.Outputs {
		m.outputs[i] = models.NewTensor(info.Shape, models.Float32)
		m.logger.Info("model output",
			zap.Int("index", i),
			zap.String("name", info.Name),
			zap.Int64s("shape", info.Shape))
	}

	m.loaded = true
	m.logger.Info("model loaded", zap.String("path", m.modelPath))
	m.hooks.OnModelLoaded(m)
	return nil
}

// Process runs one frame. Nothing is returned: failures are logged and the
// previously published results are kept.
func (m *ModelSession) Process(ctx *chain.Context) {
	if !m.loaded || m.input == nil {
		return
	}
	start := time.Now()
	timings := models.ProcessingTimings{}

	view, err := m.pixels.Acquire(ctx, m.input)
	timings.Acquire = time.Since(start)
	if err != nil {
		m.logger.Debug("frame skipped", zap.Error(err))
		return
	}

	prepStart := time.Now()
	if len(m.inputs) > 0 {
		if err := m.hooks.PrepareInput(view, m.inputs[0]); err != nil {
			m.logger.Warn("input preparation failed", zap.Error(err))
		}
	}
	view.Release()
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	if err := m.RunInference(); err != nil {
		m.logger.Error("inference failed", zap.Error(err))
		return
	}
	timings.Inference = time.Since(inferStart)

	decodeStart := time.Now()
	if len(m.outputs) > 0 {
		m.hooks.DecodeOutput(m.outputs[0])
	}
	timings.Decode = time.Since(decodeStart)
	timings.Total = time.Since(start)
	m.timings = timings
	m.completed++
	m.logTimings()
}

// RunInference runs the model on the current input tensors and refreshes the
// output tensors. On failure the outputs keep their previous contents.
func (m *ModelSession) RunInference() error {
	if !m.loaded {
		return newError(UsageError, "model not loaded", nil)
	}
	if err := m.session.Run(m.inputs, m.outputs); err != nil {
		return newError(BackendError, "run", err)
	}
	return nil
}

func (m *ModelSession) Cleanup() {
	m.pixels.Release()
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			m.logger.Warn("destroy session", zap.Error(err))
		}
		m.session = nil
	}
	m.inputs = nil
	m.outputs = nil
	m.loaded = false
}

func (m *ModelSession) logTimings() {
	if ce := m.logger.Check(zap.DebugLevel, "processing times"); ce != nil {
		ce.Write(
			zap.Duration("acquire", m.timings.Acquire),
			zap.Duration("preprocess", m.timings.Preprocess),
			zap.Duration("inference", m.timings.Inference),
			zap.Duration("decode", m.timings.Decode),
			zap.Duration("total", m.timings.Total))
	}
}

func (m *ModelSession) IsLoaded() bool    { return m.loaded }
func (m *ModelSession) ModelPath() string { return m.modelPath }
func (m *ModelSession) InputCount() int   { return len(m.inputs) }
func (m *ModelSession) OutputCount() int  { return len(m.outputs) }

func (m *ModelSession) Schema() models.ModelSchema { return m.schema }

// LastTimings reports the stage durations of the last completed frame.
func (m *ModelSession) LastTimings() models.ProcessingTimings { return m.timings }

// FramesCompleted counts frames that reached the decode stage. Skipped
// frames and failed inferences do not count.
func (m *ModelSession) FramesCompleted() int64 { return m.completed }

func (m *ModelSession) InputName(i int) string {
	if i < 0 || i >= len(m.schema.Inputs) {
		return ""
	}
	return m.schema.Inputs[i].Name
}

func (m *ModelSession) OutputName(i int) string {
	if i < 0 || i >= len(m.schema.Outputs) {
		return ""
	}
	return m.schema.Outputs[i].Name
}

func (m *ModelSession) InputShape(i int) []int64 {
	if i < 0 || i >= len(m.inputs) {
		return nil
	}
	return append([]int64(nil), m.inputs[i].Shape...)
}

func (m *ModelSession) OutputShape(i int) []int64 {
	if i < 0 || i >= len(m.outputs) {
		return nil
	}
	return append([]int64(nil), m.outputs[i].Shape...)
}

var emptyTensor = models.Tensor{}

// OutputTensor returns the i-th output, or an empty tensor when out of range.
func (m *ModelSession) OutputTensor(i int) *models.Tensor {
	if i < 0 || i >= len(m.outputs) {
		t := emptyTensor
		return &t
	}
	return m.outputs[i]
}

// InputTensor returns the i-th input, or an empty tensor when out of range.
func (m *ModelSession) InputTensor(i int) *models.Tensor {
	if i < 0 || i >= len(m.inputs) {
		t := emptyTensor
		return &t
	}
	return m.inputs[i]
}

// inputDims reports the layout, spatial size and channels of the first input
// as declared by the model. Dynamic dimensions have already been bound to 1,
// so a small trailing dimension marks NHWC even when the height is unknown.
// ok is false when the input is not a 4-D image tensor.
func (m *ModelSession) inputDims() (layout Layout, width, height, channels int, ok bool) {
	if len(m.schema.Inputs) == 0 || len(m.schema.Inputs[0].Shape) != 4 {
		return NHWC, 0, 0, 0, false
	}
	s := m.schema.Inputs[0].Shape
	if s[1] > 4 || s[3] <= 4 {
		return NHWC, int(s[2]), int(s[1]), int(s[3]), true
	}
	return NCHW, int(s[3]), int(s[2]), int(s[1]), true
}

func (m *ModelSession) inputType() models.ElementType {
	if len(m.schema.Inputs) == 0 {
		return models.Float32
	}
	return m.schema.Inputs[0].Type
}
