package detections

import "time"

const (
	// GPU readback waits are bounded: readbackPollAttempts polls, each followed
	// by a readbackPollInterval sleep.
	readbackPollAttempts = 100
	readbackPollInterval = time.Millisecond

	// Model input dimensions below this are treated as dynamic.
	minStaticInputDim = 32

	DefaultPoseThreshold = 0.3
	DefaultPoseInputSize = 192
	dynamicPoseInputSize = 256
	minDetectedKeypoints = 5
	singlePoseValues     = 17 * 3
	multiPoseStride      = 56
	maxMultiPoseCount    = 6

	DefaultFaceThreshold = 0.5
	DefaultMaxFaces      = 10
	DefaultFaceInputSize = 128
	faceNMSThreshold     = 0.3
	faceCandidateFactor  = 3
	faceRegressorValues  = 16
	faceScoreIndex       = 16

	defaultInputChannels = 3

	// AddonName is reported with every operator registration.
	AddonName = "vision-inference"
	Category  = "ML"
)
