package detections

import (
	"github.com/Tutortoise/vision-inference/chain"
	"github.com/Tutortoise/vision-inference/models"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	fm1Anchors = 16 * 16 * 2
	fm2Anchors = 8 * 8 * 6
)

// FaceDetector decodes BlazeFace (front camera, 128x128) output into face
// boxes with six landmarks each, followed by non-maximum suppression.
type FaceDetector struct {
	*ModelSession

	threshold float32
	maxFaces  int

	layout      Layout
	inputWidth  int
	inputHeight int
	channels    int

	anchors []models.Anchor
	faces   []models.Face

	scores     []float32
	regressors []float32
	logits     []float64
}

func NewFaceDetector() *FaceDetector {
	d := &FaceDetector{
		threshold:   DefaultFaceThreshold,
		maxFaces:    DefaultMaxFaces,
		layout:      NHWC,
		inputWidth:  DefaultFaceInputSize,
		inputHeight: DefaultFaceInputSize,
		channels:    defaultInputChannels,
		anchors:     GenerateAnchors(),
		scores:      make([]float32, NumAnchors),
		regressors:  make([]float32, NumAnchors*faceRegressorValues),
		logits:      make([]float64, NumAnchors),
	}
	d.ModelSession = newModelSession("FaceDetector", faceHooks{d})
	return d
}

func (d *FaceDetector) SetInput(src chain.Source) *FaceDetector {
	d.ModelSession.SetInput(src)
	return d
}

func (d *FaceDetector) SetModel(path string) *FaceDetector {
	d.ModelSession.SetModel(path)
	return d
}

func (d *FaceDetector) SetSessionLoader(loader SessionLoader) *FaceDetector {
	d.ModelSession.SetSessionLoader(loader)
	return d
}

// SetConfidenceThreshold clamps t to [0,1].
func (d *FaceDetector) SetConfidenceThreshold(t float32) *FaceDetector {
	d.threshold = clamp32(t, 0, 1)
	return d
}

// SetMaxFaces limits the published faces; values below 1 become 1.
func (d *FaceDetector) SetMaxFaces(n int) *FaceDetector {
	d.maxFaces = max(1, n)
	return d
}

func (d *FaceDetector) ConfidenceThreshold() float32 { return d.threshold }
func (d *FaceDetector) MaxFaces() int                { return d.maxFaces }
func (d *FaceDetector) Detected() bool               { return len(d.faces) > 0 }
func (d *FaceDetector) FaceCount() int               { return len(d.faces) }

func (d *FaceDetector) InputSize() (width, height int) {
	return d.inputWidth, d.inputHeight
}

func (d *FaceDetector) Face(i int) models.Face {
	if i < 0 || i >= len(d.faces) {
		return models.Face{}
	}
	return d.faces[i]
}

func (d *FaceDetector) BoundingBox(i int) models.Rect {
	return d.Face(i).BBox
}

func (d *FaceDetector) Landmark(i int, lm models.FaceLandmark) models.Point {
	if !lm.Valid() {
		return models.Point{}
	}
	return d.Face(i).Landmarks[lm]
}

func (d *FaceDetector) Confidence(i int) float32 {
	return d.Face(i).Confidence
}

func (d *FaceDetector) Faces() []models.Face {
	return append([]models.Face(nil), d.faces...)
}

func (d *FaceDetector) Anchors() []models.Anchor {
	return append([]models.Anchor(nil), d.anchors...)
}

// gatherOutputs copies the model outputs into the flat score and regressor
// buffers. Outputs are matched by element count so their declaration order
// does not matter: four tensors split per feature map, a (regressors, scores)
// pair, or a single tensor of at least 17 values per anchor with the score at
// index 16.
func (d *FaceDetector) gatherOutputs() error {
	bySize := make(map[int]*models.Tensor)
	for i := 0; i < d.OutputCount(); i++ {
		t := d.OutputTensor(i)
		if _, dup := bySize[t.Size()]; !dup {
			bySize[t.Size()] = t
		}
	}

	s1, ok1 := bySize[fm1Anchors]
	s2, ok2 := bySize[fm2Anchors]
	r1, ok3 := bySize[fm1Anchors*faceRegressorValues]
	r2, ok4 := bySize[fm2Anchors*faceRegressorValues]
	if ok1 && ok2 && ok3 && ok4 {
		copy(d.scores, floatValues(s1))
		copy(d.scores[fm1Anchors:], floatValues(s2))
		copy(d.regressors, floatValues(r1))
		copy(d.regressors[fm1Anchors*faceRegressorValues:], floatValues(r2))
		return nil
	}

	scores, okS := bySize[NumAnchors]
	regs, okR := bySize[NumAnchors*faceRegressorValues]
	if okS && okR {
		copy(d.scores, floatValues(scores))
		copy(d.regressors, floatValues(regs))
		return nil
	}

	if d.OutputCount() > 0 {
		combined := d.OutputTensor(0)
		n := combined.Size()
		if n > 0 && n%NumAnchors == 0 && n/NumAnchors > faceScoreIndex {
			stride := n / NumAnchors
			values := floatValues(combined)
			for i := 0; i < NumAnchors; i++ {
				row := values[i*stride : (i+1)*stride]
				copy(d.regressors[i*faceRegressorValues:(i+1)*faceRegressorValues], row[:faceRegressorValues])
				d.scores[i] = row[faceScoreIndex]
			}
			return nil
		}
	}

	shapes := make([][]int64, d.OutputCount())
	for i := range shapes {
		shapes[i] = d.OutputShape(i)
	}
	return errors.Errorf("unrecognised face model outputs %v", shapes)
}

func (d *FaceDetector) decode() {
	if err := d.gatherOutputs(); err != nil {
		d.logger.Warn("cannot decode face output", zap.Error(err))
		d.faces = nil
		return
	}

	for i, s := range d.scores {
		d.logits[i] = float64(s)
	}
	probs, err := stats.Sigmoid(d.logits)
	if err != nil {
		d.logger.Warn("score sigmoid", zap.Error(err))
		d.faces = nil
		return
	}

	d.faces = d.decodeFaces(probs)
}

// decodeFaces turns anchor probabilities and regressors into the final face list.
func (d *FaceDetector) decodeFaces(probs []float64) []models.Face {
	sw := float32(d.inputWidth)
	sh := float32(d.inputHeight)

	var candidates []models.Face
	for i, p := range probs {
		conf := float32(p)
		if conf < d.threshold {
			continue
		}
		a := d.anchors[i]
		r := d.regressors[i*faceRegressorValues : (i+1)*faceRegressorValues]

		cx := r[0]/sw*a.W + a.X
		cy := r[1]/sh*a.H + a.Y
		w := r[2] / sw * a.W
		h := r[3] / sh * a.H

		face := models.Face{
			BBox: models.Rect{
				X:      clamp32(cx-w/2, 0, 1),
				Y:      clamp32(cy-h/2, 0, 1),
				Width:  clamp32(w, 0, 1),
				Height: clamp32(h, 0, 1),
			},
			Confidence: clamp32(conf, 0, 1),
		}
		for k := 0; k < models.NumFaceLandmarks; k++ {
			face.Landmarks[k] = models.Point{
				X: clamp32(r[4+k*2]/sw*a.W+a.X, 0, 1),
				Y: clamp32(r[5+k*2]/sh*a.H+a.Y, 0, 1),
			}
		}
		candidates = append(candidates, face)
	}

	sortFacesByConfidence(candidates)
	if limit := faceCandidateFactor * d.maxFaces; len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return NonMaxSuppression(candidates, faceNMSThreshold, d.maxFaces)
}

type faceHooks struct {
	d *FaceDetector
}

func (fh faceHooks) OnModelLoaded(m *ModelSession) {
	d := fh.d
	if layout, w, h, c, ok := m.inputDims(); ok {
		d.layout = layout
		d.channels = c
		if w > minStaticInputDim && h > minStaticInputDim {
			d.inputWidth, d.inputHeight = w, h
		}
	}
	m.logger.Info("face model ready",
		zap.Int("input_width", d.inputWidth),
		zap.Int("input_height", d.inputHeight),
		zap.Stringer("layout", d.layout),
		zap.Int("anchors", len(d.anchors)))
	for i := 0; i < m.OutputCount(); i++ {
		m.logger.Info("face model output",
			zap.Int("index", i),
			zap.String("name", m.OutputName(i)),
			zap.Int64s("shape", m.OutputShape(i)))
	}
}

func (fh faceHooks) PrepareInput(view PixelView, input *models.Tensor) error {
	d := fh.d
	input.Resize(imageShape(d.layout, d.inputWidth, d.inputHeight, d.channels))
	return Resample(view, input, RangeSigned)
}

func (fh faceHooks) DecodeOutput(*models.Tensor) {
	fh.d.decode()
}
