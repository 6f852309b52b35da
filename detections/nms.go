package detections

import (
	"sort"

	"github.com/Tutortoise/vision-inference/models"

	flatbush "github.com/bmharper/flatbush-go"
)

func sortFacesByConfidence(faces []models.Face) {
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Confidence > faces[j].Confidence
	})
}

// NonMaxSuppression greedily keeps faces in the given order, dropping any face
// whose IoU with an already kept face exceeds iouThreshold, and stops after
// limit faces. Input must be sorted by descending confidence.
func NonMaxSuppression(faces []models.Face, iouThreshold float32, limit int) []models.Face {
	if len(faces) == 0 || limit <= 0 {
		return nil
	}

	// Spatial index to avoid comparing every pair
	fb := flatbush.NewFlatbush64()
	fb.Reserve(len(faces))
	for _, f := range faces {
		b := f.BBox
		fb.Add(float64(b.X), float64(b.Y), float64(b.X2()), float64(b.Y2()))
	}
	fb.Finish()

	suppressed := make([]bool, len(faces))
	kept := make([]models.Face, 0, min(limit, len(faces)))
	for i, f := range faces {
		if suppressed[i] {
			continue
		}
		kept = append(kept, f)
		if len(kept) == limit {
			break
		}
		b := f.BBox
		for _, j := range fb.Search(float64(b.X), float64(b.Y), float64(b.X2()), float64(b.Y2())) {
			if j <= i || suppressed[j] {
				continue
			}
			if b.IOU(faces[j].BBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
