package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type SyntheticOptions struct {
	Images     int
	Regions    int
	FeatureDim int
	Seed       int64
}

var (
	demoColors = []string{"red", "green", "blue", "yellow"}
	demoShapes = []string{"circle", "square", "triangle"}
)

// WriteSynthetic generates a small captioned dataset whose features encode
// the color and shape named in the captions. It returns the captions file and
// features directory it wrote under dir.
func WriteSynthetic(dir string, opts SyntheticOptions) (string, string, error) {
	if opts.Images < 1 || opts.Regions < 1 || opts.FeatureDim < 1 {
		return "", "", fmt.Errorf("images, regions and feature dim must be positive")
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	basis := func(n int) [][]float64 {
		out := make([][]float64, n)
		for i := range out {
			out[i] = make([]float64, opts.FeatureDim)
			for j := range out[i] {
				out[i][j] = rng.NormFloat64()
			}
		}
		return out
	}
	colorBasis, shapeBasis := basis(len(demoColors)), basis(len(demoShapes))

	capsPath := filepath.Join(dir, "captions_train.json")
	featDir := filepath.Join(dir, "features")
	var caps Captions
	row := make([]float64, opts.FeatureDim)
	for id := 1; id <= opts.Images; id++ {
		c, s := rng.Intn(len(demoColors)), rng.Intn(len(demoShapes))
		m := mat.NewDense(opts.Regions, opts.FeatureDim, nil)
		for r := 0; r < opts.Regions; r++ {
			w := float64(r+1) / float64(opts.Regions)
			for j := range row {
				row[j] = 0.1 * rng.NormFloat64()
			}
			floats.AddScaled(row, w, colorBasis[c])
			floats.AddScaled(row, 1-w, shapeBasis[s])
			for j, x := range row {
				row[j] = math.Abs(x)
			}
			m.SetRow(r, row)
		}
		if err := SaveFeatures(FeaturePath(featDir, id), m); err != nil {
			return "", "", err
		}
		caps.Images = append(caps.Images, Image{ID: id, FileName: fmt.Sprintf("synthetic_%06d.jpg", id)})
		caps.Annotations = append(caps.Annotations,
			Annotation{ID: 2*id - 1, ImageID: id, Caption: fmt.Sprintf("A %s %s.", demoColors[c], demoShapes[s])},
			Annotation{ID: 2 * id, ImageID: id, Caption: fmt.Sprintf("There is a %s %s in the picture.", demoColors[c], demoShapes[s])},
		)
	}
	if err := WriteCaptions(capsPath, caps); err != nil {
		return "", "", err
	}
	return capsPath, featDir, nil
}
