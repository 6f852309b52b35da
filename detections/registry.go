package detections

import (
	"github.com/Tutortoise/vision-inference/chain"

	"go.uber.org/multierr"
)

// Operators lists the inference operators provided by this package.
func Operators() []chain.OperatorInfo {
	return []chain.OperatorInfo{
		{
			Name:        "ONNXModel",
			Category:    Category,
			Description: "Run ONNX model inference on input texture",
			Addon:       AddonName,
			New:         func() chain.Operator { return NewModelSession() },
		},
		{
			Name:        "PoseDetector",
			Category:    Category,
			Description: "Detect body poses using MoveNet model",
			Addon:       AddonName,
			New:         func() chain.Operator { return NewPoseDetector() },
		},
		{
			Name:        "FaceDetector",
			Category:    Category,
			Description: "Detect faces and facial landmarks using BlazeFace model",
			Addon:       AddonName,
			New:         func() chain.Operator { return NewFaceDetector() },
		},
	}
}

func Register(r *chain.Registry) error {
	var errs error
	for _, info := range Operators() {
		errs = multierr.Append(errs, r.Register(info))
	}
	return errs
}
