package detections

import (
	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/chewxy/math32"
	"go.uber.org/zap"
)

// PoseDetector decodes MoveNet output into 17 body keypoints. Both the
// single-pose [1,1,17,3] and the multi-pose [1,6,56] output layouts are
// accepted; keypoints are (y, x, confidence) triplets in normalized coordinates.
type PoseDetector struct {
	*ModelSession

	threshold    float32
	drawSkeleton bool

	layout      Layout
	inputWidth  int
	inputHeight int
	channels    int

	keypoints [models.NumKeypoints]models.KeypointRecord
	detected  bool
}

func NewPoseDetector() *PoseDetector {
	d := &PoseDetector{
		threshold:    DefaultPoseThreshold,
		drawSkeleton: true,
		layout:       NHWC,
		inputWidth:   DefaultPoseInputSize,
		inputHeight:  DefaultPoseInputSize,
		channels:     defaultInputChannels,
	}
	d.ModelSession = newModelSession("PoseDetector", poseHooks{d})
	return d
}

func (d *PoseDetector) SetInput(src chain.Source) *PoseDetector {
	d.ModelSession.SetInput(src)
	return d
}

func (d *PoseDetector) SetModel(path string) *PoseDetector {
	d.ModelSession.SetModel(path)
	return d
}

func (d *PoseDetector) SetSessionLoader(loader SessionLoader) *PoseDetector {
	d.ModelSession.SetSessionLoader(loader)
	return d
}

// SetConfidenceThreshold clamps t to [0,1].
func (d *PoseDetector) SetConfidenceThreshold(t float32) *PoseDetector {
	d.threshold = clamp32(t, 0, 1)
	return d
}

func (d *PoseDetector) SetDrawSkeleton(draw bool) *PoseDetector {
	d.drawSkeleton = draw
	return d
}

func (d *PoseDetector) ConfidenceThreshold() float32 { return d.threshold }
func (d *PoseDetector) DrawSkeleton() bool           { return d.drawSkeleton }
func (d *PoseDetector) Detected() bool               { return d.detected }

// InputSize is the resolution frames are resampled to.
func (d *PoseDetector) InputSize() (width, height int) {
	return d.inputWidth, d.inputHeight
}

// Keypoint returns the normalized position of kp, or the origin if kp is out of range.
func (d *PoseDetector) Keypoint(kp models.Keypoint) models.Point {
	if !kp.Valid() {
		return models.Point{}
	}
	r := d.keypoints[kp]
	return models.Point{X: r.X, Y: r.Y}
}

func (d *PoseDetector) Confidence(kp models.Keypoint) float32 {
	if !kp.Valid() {
		return 0
	}
	return d.keypoints[kp].Confidence
}

func (d *PoseDetector) Keypoints() [models.NumKeypoints]models.KeypointRecord {
	return d.keypoints
}

// Skeleton returns the bones whose endpoints both pass the confidence threshold.
func (d *PoseDetector) Skeleton() []models.SkeletonConnection {
	var bones []models.SkeletonConnection
	for _, b := range models.SkeletonConnections {
		if d.keypoints[b.From].Confidence >= d.threshold && d.keypoints[b.To].Confidence >= d.threshold {
			bones = append(bones, b)
		}
	}
	return bones
}

func (d *PoseDetector) publish(kps [models.NumKeypoints]models.KeypointRecord) {
	valid := 0
	for _, k := range kps {
		if k.Confidence >= d.threshold {
			valid++
		}
	}
	d.keypoints = kps
	d.detected = valid >= minDetectedKeypoints
}

func (d *PoseDetector) decode(out *models.Tensor) {
	values := floatValues(out)
	n := len(values)
	switch {
	case n >= multiPoseStride && n%multiPoseStride == 0 && (len(out.Shape) == 3 || n == maxMultiPoseCount*multiPoseStride):
		d.publish(d.bestPose(values, n/multiPoseStride))
	case n >= singlePoseValues:
		d.publish(readKeypoints(values))
	default:
		d.logger.Warn("unexpected pose output", zap.Int64s("shape", out.Shape))
		d.publish([models.NumKeypoints]models.KeypointRecord{})
	}
}

// bestPose picks the detection with the most keypoints above threshold,
// breaking ties by mean confidence and then by index.
func (d *PoseDetector) bestPose(values []float32, count int) [models.NumKeypoints]models.KeypointRecord {
	best := -1
	bestValid := -1
	var bestAvg float32
	for i := 0; i < count; i++ {
		base := i * multiPoseStride
		valid := 0
		var sum float32
		for k := 0; k < models.NumKeypoints; k++ {
			c := sanitizeUnit(values[base+k*3+2])
			sum += c
			if c >= d.threshold {
				valid++
			}
		}
		avg := sum / models.NumKeypoints
		if valid > bestValid || (valid == bestValid && avg > bestAvg) {
			best, bestValid, bestAvg = i, valid, avg
		}
	}
	base := best * multiPoseStride
	return readKeypoints(values[base : base+singlePoseValues])
}

func readKeypoints(values []float32) [models.NumKeypoints]models.KeypointRecord {
	var kps [models.NumKeypoints]models.KeypointRecord
	for i := range kps {
		kps[i] = models.KeypointRecord{
			Y:          sanitizeUnit(values[i*3]),
			X:          sanitizeUnit(values[i*3+1]),
			Confidence: sanitizeUnit(values[i*3+2]),
		}
	}
	return kps
}

// sanitizeUnit maps non-finite values to 0 and clamps to [0,1].
func sanitizeUnit(v float32) float32 {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return 0
	}
	return clamp32(v, 0, 1)
}

func floatValues(t *models.Tensor) []float32 {
	if t.Type == models.Float32 {
		return t.F32[:t.Size()]
	}
	out := make([]float32, t.Size())
	for i := range out {
		out[i] = t.At(i)
	}
	return out
}

type poseHooks struct {
	d *PoseDetector
}

func (ph poseHooks) OnModelLoaded(m *ModelSession) {
	d := ph.d
	if layout, w, h, c, ok := m.inputDims(); ok {
		d.layout = layout
		d.channels = c
		if w < minStaticInputDim || h < minStaticInputDim {
			w, h = dynamicPoseInputSize, dynamicPoseInputSize
		}
		d.inputWidth, d.inputHeight = w, h
	}
	m.logger.Info("pose model ready",
		zap.Int("input_width", d.inputWidth),
		zap.Int("input_height", d.inputHeight),
		zap.Stringer("layout", d.layout),
		zap.Stringer("input_type", m.inputType()))
}

func (ph poseHooks) PrepareInput(view PixelView, input *models.Tensor) error {
	d := ph.d
	input.Resize(imageShape(d.layout, d.inputWidth, d.inputHeight, d.channels))
	return Resample(view, input, RangeUnit)
}

func (ph poseHooks) DecodeOutput(output *models.Tensor) {
	ph.d.decode(output)
}
