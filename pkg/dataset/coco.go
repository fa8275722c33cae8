package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// Captions is the subset of the COCO captions file the trainer reads.
type Captions struct {
	Images      []Image      `json:"images"`
	Annotations []Annotation `json:"annotations"`
}

type Image struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name,omitempty"`
}

// Annotation pairs one caption with the image it describes. An image usually
// has several.
type Annotation struct {
	ID      int    `json:"id,omitempty"`
	ImageID int    `json:"image_id"`
	Caption string `json:"caption"`
}

func ReadCaptions(path string) (Captions, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Captions{}, err
	}
	var c Captions
	if err := json.Unmarshal(b, &c); err != nil {
		return Captions{}, fmt.Errorf("parse captions %s: %w", path, err)
	}
	if len(c.Annotations) == 0 {
		return Captions{}, fmt.Errorf("captions %s has no annotations", path)
	}
	for i, a := range c.Annotations {
		if strings.TrimSpace(a.Caption) == "" {
			return Captions{}, fmt.Errorf("captions %s: annotation %d (image %d) is empty", path, i, a.ImageID)
		}
	}
	return c, nil
}

func WriteCaptions(path string, c Captions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Limit keeps n annotations chosen by a seeded shuffle. n <= 0 keeps all of
// them in file order.
func Limit(anns []Annotation, n int, seed int64) []Annotation {
	if n <= 0 || n >= len(anns) {
		return anns
	}
	out := append([]Annotation(nil), anns...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:n]
}

// Texts returns the caption strings of anns in order.
func Texts(anns []Annotation) []string {
	out := make([]string, len(anns))
	for i, a := range anns {
		out[i] = a.Caption
	}
	return out
}
