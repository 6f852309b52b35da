package detections

import "github.com/Tutortoise/vision-inference/models"

// NumAnchors is the size of the BlazeFace front-model anchor table.
const NumAnchors = 16*16*2 + 8*8*6

var anchorLayers = []struct {
	grid    int
	perCell int
}{
	{grid: 16, perCell: 2},
	{grid: 8, perCell: 6},
}

// GenerateAnchors builds the BlazeFace anchor table: every cell of the 16x16
// grid twice, then every cell of the 8x8 grid six times, row-major, with
// centers at ((x+0.5)/grid, (y+0.5)/grid) and unit size.
func GenerateAnchors() []models.Anchor {
	anchors := make([]models.Anchor, 0, NumAnchors)
	for _, layer := range anchorLayers {
		g := float32(layer.grid)
		for y := 0; y < layer.grid; y++ {
			cy := (float32(y) + 0.5) / g
			for x := 0; x < layer.grid; x++ {
				cx := (float32(x) + 0.5) / g
				for k := 0; k < layer.perCell; k++ {
					anchors = append(anchors, models.Anchor{X: cx, Y: cy, W: 1, H: 1})
				}
			}
		}
	}
	return anchors
}
