package detections

import (
	"github.com/Tutortoise/vision-inference/models"
)

// Session is a loaded model ready to run.
type Session interface {
	Inputs() []models.TensorInfo
	Outputs() []models.TensorInfo
	// Run executes one synchronous inference. On success every outputs[i] is
	// overwritten with the runtime's result (shape included); on failure the
	// outputs are left untouched.
	Run(inputs []*models.Tensor, outputs []*models.Tensor) error
	Destroy() error
}

// SessionLoader opens a model file.
type SessionLoader func(path string) (Session, error)
