package main

import (
	"image"

	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/config"
	"github.com/Tutortoise/vision-inference/detections"
	"github.com/Tutortoise/vision-inference/gpu"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	KindPose = "pose"
	KindFace = "face"
)

var errFrameDropped = errors.New("frame was not processed")

// sessionOperator is what every detector exposes through its embedded ModelSession.
type sessionOperator interface {
	chain.Operator
	IsLoaded() bool
	FramesCompleted() int64
	LastTimings() models.ProcessingTimings
}

// Worker owns one detector chain. It is used by a single request at a time.
type Worker struct {
	kind   string
	ctx    *chain.Context
	source *chain.ImageSource
	chain  *chain.Chain
	op     sessionOperator
	device *gpu.SoftwareDevice
}

// WorkerFactory builds a ready worker for a pool.
type WorkerFactory func() (*Worker, error)

// NewWorker builds and initializes the chain Image -> detector for kind.
// A nil loader uses ONNX Runtime.
func NewWorker(cfg *config.AppConfig, kind string, loader detections.SessionLoader, logger *zap.Logger) (*Worker, error) {
	w := &Worker{
		kind:   kind,
		ctx:    chain.NewContext(logger),
		source: chain.NewImageSource(),
		chain:  chain.New(),
	}
	if cfg.Server.Readback {
		w.device = gpu.NewSoftwareDevice()
		w.ctx.WithGPU(w.device, w.device.Queue())
	}

	switch kind {
	case KindPose:
		d := detections.NewPoseDetector().
			SetModel(cfg.Pose.ModelPath).
			SetConfidenceThreshold(cfg.Pose.ConfidenceThreshold).
			SetDrawSkeleton(cfg.Pose.DrawSkeleton).
			SetInput(w.source)
		if loader != nil {
			d.SetSessionLoader(loader)
		}
		w.op = d
	case KindFace:
		d := detections.NewFaceDetector().
			SetModel(cfg.Face.ModelPath).
			SetConfidenceThreshold(cfg.Face.ConfidenceThreshold).
			SetMaxFaces(cfg.Face.MaxFaces).
			SetInput(w.source)
		if loader != nil {
			d.SetSessionLoader(loader)
		}
		w.op = d
	default:
		return nil, errors.Errorf("unknown detector kind %q", kind)
	}

	if err := w.chain.Add(w.source.Name(), w.source); err != nil {
		return nil, err
	}
	if err := w.chain.Add(w.op.Name(), w.op); err != nil {
		return nil, err
	}
	if err := w.chain.Init(w.ctx); err != nil {
		w.chain.Cleanup()
		return nil, errors.Wrapf(err, "init %s worker", kind)
	}
	return w, nil
}

// Run pushes img through the chain. It fails when the detector did not
// complete the frame, in which case its published results are stale.
func (w *Worker) Run(img image.Image) error {
	frame := chain.FrameFromImage(img)
	if w.device != nil {
		tex := gpu.UploadRGBA(frame.Width, frame.Height, frame.Pixels, gpu.FormatBGRA8)
		w.source.SetFrame(models.Frame{}).SetTexture(tex)
	} else {
		w.source.SetFrame(frame)
	}

	before := w.op.FramesCompleted()
	w.chain.Process(w.ctx)
	if w.op.FramesCompleted() == before {
		return errFrameDropped
	}
	return nil
}

func (w *Worker) Kind() string { return w.kind }

func (w *Worker) Pose() (*detections.PoseDetector, bool) {
	return chain.Lookup[*detections.PoseDetector](w.chain, w.op.Name())
}

func (w *Worker) Face() (*detections.FaceDetector, bool) {
	return chain.Lookup[*detections.FaceDetector](w.chain, w.op.Name())
}

func (w *Worker) Timings() models.ProcessingTimings {
	return w.op.LastTimings()
}

func (w *Worker) Healthy() bool {
	return w.op.IsLoaded()
}

func (w *Worker) Close() {
	w.chain.Cleanup()
}
