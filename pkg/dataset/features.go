package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// FeaturePath is where the region features of an image are cached.
func FeaturePath(dir string, imageID int) string {
	return filepath.Join(dir, fmt.Sprintf("%012d.feat", imageID))
}

// SaveFeatures stores a regions x featureDim matrix in gonum's binary form.
func SaveFeatures(path string, m *mat.Dense) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadFeatures(path string) (*mat.Dense, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m mat.Dense
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("decode features %s: %w", path, err)
	}
	return &m, nil
}
