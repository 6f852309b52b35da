package detections

import (
	"runtime"
	"sync"

	"github.com/Tutortoise/vision-inference/models"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type RuntimeConfig struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the binding's default.
	LibraryPath string
	// Thread counts for new sessions; 0 means one per CPU.
	IntraOpThreads int
	InterOpThreads int
}

var (
	runtimeMu  sync.Mutex
	runtimeCfg RuntimeConfig
)

// InitRuntime loads the onnxruntime library and creates the process-wide
// environment. Calling it again only updates the session settings.
func InitRuntime(cfg RuntimeConfig, logger *zap.Logger) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	runtimeCfg = cfg
	if ort.IsInitialized() {
		return nil
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return newError(BackendError, "initialize onnx runtime", err)
	}
	logger.Info("onnx runtime initialized",
		zap.String("library", cfg.LibraryPath),
		zap.Strings("cpu_features", cpuFeatures()))
	return nil
}

func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

type onnxSession struct {
	session *ort.DynamicAdvancedSession
	inputs  []models.TensorInfo
	outputs []models.TensorInfo
}

// OpenONNXSession is the default SessionLoader. InitRuntime must have succeeded first.
func OpenONNXSession(path string) (Session, error) {
	runtimeMu.Lock()
	cfg := runtimeCfg
	runtimeMu.Unlock()

	if !ort.IsInitialized() {
		return nil, newError(BackendError, "onnx runtime not initialized", nil)
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, newError(BackendError, "read model schema", err)
	}

	s := &onnxSession{}
	inNames := make([]string, len(inInfo))
	for i, info := range inInfo {
		typ, err := elementType(info.DataType)
		if err != nil {
			return nil, newError(BackendError, "input "+info.Name, err)
		}
		inNames[i] = info.Name
		s.inputs = append(s.inputs, models.TensorInfo{Name: info.Name, Shape: []int64(info.Dimensions), Type: typ})
	}
	outNames := make([]string, len(outInfo))
	for i, info := range outInfo {
		outNames[i] = info.Name
		// outputs are always exposed as float32
		s.outputs = append(s.outputs, models.TensorInfo{Name: info.Name, Shape: []int64(info.Dimensions), Type: models.Float32})
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, newError(BackendError, "create session options", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(threadCount(cfg.IntraOpThreads)); err != nil {
		return nil, newError(BackendError, "set intra-op threads", err)
	}
	if err := options.SetInterOpNumThreads(threadCount(cfg.InterOpThreads)); err != nil {
		return nil, newError(BackendError, "set inter-op threads", err)
	}

	s.session, err = ort.NewDynamicAdvancedSession(path, inNames, outNames, options)
	if err != nil {
		return nil, newError(BackendError, "create session", err)
	}
	return s, nil
}

func threadCount(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func elementType(t ort.TensorElementDataType) (models.ElementType, error) {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return models.Float32, nil
	case ort.TensorElementDataTypeUint8:
		return models.Uint8, nil
	case ort.TensorElementDataTypeInt32:
		return models.Int32, nil
	}
	return 0, errors.Errorf("unsupported element type %v", t)
}

func (s *onnxSession) Inputs() []models.TensorInfo  { return s.inputs }
func (s *onnxSession) Outputs() []models.TensorInfo { return s.outputs }

func (s *onnxSession) Run(inputs []*models.Tensor, outputs []*models.Tensor) (err error) {
	if len(inputs) != len(s.inputs) || len(outputs) != len(s.outputs) {
		return errors.Errorf("session expects %d inputs and %d outputs, got %d and %d",
			len(s.inputs), len(s.outputs), len(inputs), len(outputs))
	}

	inVals := make([]ort.Value, len(inputs))
	outVals := make([]ort.Value, len(outputs))
	defer func() {
		err = multierr.Append(err, destroyValues(inVals))
		err = multierr.Append(err, destroyValues(outVals))
	}()

	for i, t := range inputs {
		v, err := newValue(t)
		if err != nil {
			return errors.Wrapf(err, "input %s", s.inputs[i].Name)
		}
		inVals[i] = v
	}

	// nil outputs are allocated by the runtime with their actual shapes
	if err := s.session.Run(inVals, outVals); err != nil {
		return err
	}

	results := make([][]float32, len(outVals))
	for i, v := range outVals {
		data, err := floatData(v)
		if err != nil {
			return errors.Wrapf(err, "output %s", s.outputs[i].Name)
		}
		results[i] = data
	}
	for i, v := range outVals {
		outputs[i].SetFloat32([]int64(v.GetShape()), results[i])
	}
	return nil
}

func (s *onnxSession) Destroy() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

// newValue wraps the tensor's storage without copying.
func newValue(t *models.Tensor) (ort.Value, error) {
	shape := ort.NewShape(t.Shape...)
	switch t.Type {
	case models.Float32:
		v, err := ort.NewTensor(shape, t.F32)
		if err != nil {
			return nil, err
		}
		return v, nil
	case models.Uint8:
		v, err := ort.NewTensor(shape, t.U8)
		if err != nil {
			return nil, err
		}
		return v, nil
	case models.Int32:
		v, err := ort.NewTensor(shape, t.I32)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, errors.Errorf("unsupported element type %v", t.Type)
}

func floatData(v ort.Value) ([]float32, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return t.GetData(), nil
	case *ort.Tensor[float64]:
		return convertFloat32(t.GetData()), nil
	case *ort.Tensor[uint8]:
		return convertFloat32(t.GetData()), nil
	case *ort.Tensor[int32]:
		return convertFloat32(t.GetData()), nil
	case *ort.Tensor[int64]:
		return convertFloat32(t.GetData()), nil
	}
	return nil, errors.Errorf("unsupported output value %T", v)
}

func convertFloat32[T float64 | uint8 | int32 | int64](in []T) []float32 {
	out := make([]float32, len(in))
	for i, x := range in {
		out[i] = float32(x)
	}
	return out
}

func destroyValues(vals []ort.Value) error {
	var errs error
	for _, v := range vals {
		if v != nil {
			errs = multierr.Append(errs, v.Destroy())
		}
	}
	return errs
}
