package dataset

import (
	"fmt"
	"sort"
)

// Report summarizes a captions file and its feature directory.
type Report struct {
	Images      int
	Annotations int
	Regions     int
	FeatureDim  int
	Missing     []int
}

// Validate checks that every captioned image has a readable feature file and
// that all feature matrices share one shape.
func Validate(captionsFile, featuresDir string) (Report, error) {
	caps, err := ReadCaptions(captionsFile)
	if err != nil {
		return Report{}, err
	}
	seen := map[int]bool{}
	var ids []int
	for _, a := range caps.Annotations {
		if !seen[a.ImageID] {
			seen[a.ImageID] = true
			ids = append(ids, a.ImageID)
		}
	}
	sort.Ints(ids)
	rep := Report{Images: len(ids), Annotations: len(caps.Annotations)}
	for _, id := range ids {
		m, err := LoadFeatures(FeaturePath(featuresDir, id))
		if err != nil {
			rep.Missing = append(rep.Missing, id)
			continue
		}
		r, c := m.Dims()
		if rep.FeatureDim == 0 {
			rep.Regions, rep.FeatureDim = r, c
			continue
		}
		if r != rep.Regions || c != rep.FeatureDim {
			return rep, fmt.Errorf("image %d features are %dx%d, expected %dx%d", id, r, c, rep.Regions, rep.FeatureDim)
		}
	}
	if len(rep.Missing) > 0 {
		return rep, fmt.Errorf("%d of %d images have no readable features (first: %d)", len(rep.Missing), len(ids), rep.Missing[0])
	}
	return rep, nil
}
