package detections

import (
	"testing"

	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRequiresModelPath(t *testing.T) {
	m := NewModelSession()
	err := m.Init(testContext(t))
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ConfigurationError, kind)
	assert.False(t, m.IsLoaded())
}

func TestInitLoadFailure(t *testing.T) {
	src := graySource(4, 4)
	m := NewModelSession().SetModel("broken.onnx").SetInput(src).SetSessionLoader(failingLoader)
	err := m.Init(testContext(t))
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, BackendError, kind)
	assert.False(t, m.IsLoaded())

	// unloaded sessions ignore frames
	m.Process(testContext(t))
	assert.Equal(t, 0, m.OutputCount())
}

func TestInitIntrospectsSchema(t *testing.T) {
	fake := newFakeSession([]int64{-1, 3, 64, 64}, models.Uint8).
		withOutput("scores", []int64{1, -1}, []float32{0.25, 0.75})
	m := NewModelSession().SetModel("model.onnx").SetSessionLoader(loaderFor(fake))
	require.NoError(t, m.Init(testContext(t)))

	assert.True(t, m.IsLoaded())
	assert.Equal(t, "model.onnx", m.ModelPath())
	assert.Equal(t, "ONNXModel", m.Name())
	assert.Equal(t, 1, m.InputCount())
	assert.Equal(t, 1, m.OutputCount())
	assert.Equal(t, "input", m.InputName(0))
	assert.Equal(t, "scores", m.OutputName(0))
	assert.Equal(t, []int64{1, 3, 64, 64}, m.InputShape(0), "dynamic batch bound to 1")
	assert.Equal(t, []int64{1, 1}, m.OutputShape(0))
	assert.Equal(t, models.Uint8, m.InputTensor(0).Type)
	assert.Len(t, m.InputTensor(0).U8, 3*64*64)

	// out of range queries return zero values
	assert.Equal(t, "", m.InputName(1))
	assert.Equal(t, "", m.OutputName(-1))
	assert.Nil(t, m.InputShape(5))
	assert.Nil(t, m.OutputShape(5))
	assert.Equal(t, 0, m.OutputTensor(3).Size())
	assert.Equal(t, 0, m.InputTensor(-1).Size())
}

func TestProcessRunsInference(t *testing.T) {
	fake := newFakeSession([]int64{1, 3, 8, 8}, models.Float32).
		withOutput("out", []int64{1, 2}, []float32{0.25, 0.75})
	m := NewModelSession().SetModel("model.onnx").SetInput(graySource(16, 16)).SetSessionLoader(loaderFor(fake))
	ctx := testContext(t)
	require.NoError(t, m.Init(ctx))

	m.Process(ctx)
	require.Equal(t, 1, fake.runs)
	assert.Equal(t, []float32{0.25, 0.75}, m.OutputTensor(0).F32)
	assert.Equal(t, []int64{1, 2}, m.OutputShape(0))

	// default preparation: unit range float, NCHW as declared
	require.NotNil(t, fake.lastInput)
	assert.Equal(t, []int64{1, 3, 8, 8}, fake.lastInput.Shape)
	for _, v := range fake.lastInput.F32 {
		require.InDelta(t, 128.0/255.0, v, 1e-6)
	}
	assert.Positive(t, m.LastTimings().Total)
	assert.Equal(t, int64(1), m.FramesCompleted())
}

func TestProcessOutputShapeFollowsRuntime(t *testing.T) {
	fake := newFakeSession([]int64{1, 3, 8, 8}, models.Float32)
	fake.outputs = []models.TensorInfo{{Name: "boxes", Shape: []int64{1, -1, 4}}}
	fake.results = [][]float32{{1, 2, 3, 4, 5, 6, 7, 8}}
	fake.resultShapes = [][]int64{{1, 2, 4}}

	m := NewModelSession().SetModel("m.onnx").SetInput(graySource(8, 8)).SetSessionLoader(loaderFor(fake))
	ctx := testContext(t)
	require.NoError(t, m.Init(ctx))
	assert.Equal(t, []int64{1, 1, 4}, m.OutputShape(0))

	m.Process(ctx)
	assert.Equal(t, []int64{1, 2, 4}, m.OutputShape(0))
	assert.Equal(t, 8, m.OutputTensor(0).Size())
}

func TestFailedInferenceKeepsOutputs(t *testing.T) {
	fake := newFakeSession([]int64{1, 3, 8, 8}, models.Float32).
		withOutput("out", []int64{1, 2}, []float32{0.25, 0.75})
	m := NewModelSession().SetModel("model.onnx").SetInput(graySource(8, 8)).SetSessionLoader(loaderFor(fake))
	ctx := testContext(t)
	require.NoError(t, m.Init(ctx))
	m.Process(ctx)

	fake.runErr = errors.New("device lost")
	fake.results[0] = []float32{9, 9}
	m.Process(ctx)
	assert.Equal(t, 2, fake.runs)
	assert.Equal(t, []float32{0.25, 0.75}, m.OutputTensor(0).F32)
	assert.Equal(t, int64(1), m.FramesCompleted())

	err := m.RunInference()
	kind, _ := KindOf(err)
	assert.Equal(t, BackendError, kind)
}

func TestProcessSkipsFramesWithoutPixels(t *testing.T) {
	fake := newFakeSession([]int64{1, 3, 8, 8}, models.Float32).
		withOutput("out", []int64{1}, []float32{1})
	m := NewModelSession().SetModel("model.onnx").SetSessionLoader(loaderFor(fake))
	ctx := testContext(t)
	require.NoError(t, m.Init(ctx))

	m.Process(ctx)
	assert.Equal(t, 0, fake.runs, "no source")

	m.SetInput(chain.NewImageSource())
	m.Process(ctx)
	assert.Equal(t, 0, fake.runs, "source without pixels")
	assert.Zero(t, m.FramesCompleted())
}

func TestCleanupReleasesSession(t *testing.T) {
	fake := newFakeSession([]int64{1, 3, 8, 8}, models.Float32)
	m := NewModelSession().SetModel("model.onnx").SetSessionLoader(loaderFor(fake))
	require.NoError(t, m.Init(testContext(t)))
	m.Cleanup()

	assert.True(t, fake.destroyed)
	assert.False(t, m.IsLoaded())
	assert.Equal(t, 0, m.InputCount())
	err := m.RunInference()
	kind, _ := KindOf(err)
	assert.Equal(t, UsageError, kind)
}

func TestRegisterOperators(t *testing.T) {
	r := chain.NewRegistry()
	require.NoError(t, Register(r))
	list := r.List()
	require.Len(t, list, 3)

	names := make([]string, len(list))
	for i, info := range list {
		names[i] = info.Name
		assert.Equal(t, "ML", info.Category)
		assert.Equal(t, AddonName, info.Addon)
		assert.NotEmpty(t, info.Description)

		op, err := r.Create(info.Name)
		require.NoError(t, err)
		assert.Equal(t, info.Name, op.Name())
	}
	assert.Equal(t, []string{"FaceDetector", "ONNXModel", "PoseDetector"}, names)

	assert.Error(t, Register(r), "second registration collides")
}
