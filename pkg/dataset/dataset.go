// Package dataset serves (image features, caption) batches to the trainer.
//
// Captions come from a COCO style JSON file and region features from one
// gonum matrix file per image. Captions are tokenized and padded once up
// front; features are read from disk by a producer goroutine while the
// previous batch trains.
package dataset

import (
	"fmt"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/vocab"
)

// Batch is one training batch. Features holds a regions x featureDim matrix
// per example and Targets the padded caption ids, all of the same length.
type Batch struct {
	Features []*mat.Dense
	Targets  [][]int
}

func (b Batch) Size() int { return len(b.Targets) }

// SequenceLength is the padded caption length, 0 for an empty batch.
func (b Batch) SequenceLength() int {
	if len(b.Targets) == 0 {
		return 0
	}
	return len(b.Targets[0])
}

// BatchIterator walks one epoch. Next returns false when the epoch is over or
// loading failed; Err tells the two apart. Close may be called early.
type BatchIterator interface {
	Next() (Batch, bool)
	Err() error
	Close()
}

type Options struct {
	FeaturesDir      string
	MaxCaptionLength int
	BatchSize        int
	Shuffle          bool
	BufferSize       int
	DropRemainder    bool
	Seed             int64
	Prefetch         int
}

type example struct {
	imageID  int
	features string
	target   []int
}

// Set is an in-memory list of tokenized examples backed by feature files.
type Set struct {
	opts       Options
	examples   []example
	seqLen     int
	featureDim int
	regions    int
}

// New tokenizes anns with v and checks that the first feature file can be
// read. Missing files for later images surface while iterating.
func New(anns []Annotation, v *vocab.Vocabulary, opts Options) (*Set, error) {
	if len(anns) == 0 {
		return nil, fmt.Errorf("dataset has no captions")
	}
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", opts.BatchSize)
	}
	if opts.BufferSize < 1 {
		opts.BufferSize = len(anns)
	}
	targets, err := v.ProcessSentences(Texts(anns), opts.MaxCaptionLength)
	if err != nil {
		return nil, err
	}
	s := &Set{opts: opts, examples: make([]example, len(anns)), seqLen: len(targets[0])}
	for i, a := range anns {
		s.examples[i] = example{imageID: a.ImageID, features: FeaturePath(opts.FeaturesDir, a.ImageID), target: targets[i]}
	}
	first, err := LoadFeatures(s.examples[0].features)
	if err != nil {
		return nil, fmt.Errorf("read features for image %d: %w", s.examples[0].imageID, err)
	}
	s.regions, s.featureDim = first.Dims()
	if s.NumBatches() == 0 {
		return nil, fmt.Errorf("%d examples do not fill a single batch of %d with drop_remainder", len(anns), opts.BatchSize)
	}
	klog.V(1).InfoS("dataset ready", "examples", len(anns), "batches", s.NumBatches(), "sequence_length", s.seqLen,
		"regions", s.regions, "feature_dim", s.featureDim)
	return s, nil
}

func (s *Set) NumInstances() int { return len(s.examples) }

func (s *Set) BatchSize() int { return s.opts.BatchSize }

// NumBatches rounds up unless the short final batch is dropped.
func (s *Set) NumBatches() int {
	n := len(s.examples) / s.opts.BatchSize
	if !s.opts.DropRemainder && len(s.examples)%s.opts.BatchSize != 0 {
		n++
	}
	return n
}

func (s *Set) FeatureDim() int { return s.featureDim }

func (s *Set) Regions() int { return s.regions }

func (s *Set) SequenceLength() int { return s.seqLen }

// Order returns the example order of an epoch. With shuffling enabled it
// mimics a bounded shuffle buffer seeded by the epoch, so runs are
// reproducible and a resumed run sees the same order it would have seen.
func (s *Set) Order(epoch int) []int {
	n := len(s.examples)
	out := make([]int, 0, n)
	if !s.opts.Shuffle {
		for i := 0; i < n; i++ {
			out = append(out, i)
		}
		return out
	}
	rng := rand.New(rand.NewSource(s.opts.Seed + int64(epoch)))
	buf := make([]int, 0, s.opts.BufferSize)
	for i := 0; i < n; i++ {
		if len(buf) < s.opts.BufferSize {
			buf = append(buf, i)
			continue
		}
		j := rng.Intn(len(buf))
		out = append(out, buf[j])
		buf[j] = i
	}
	rng.Shuffle(len(buf), func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })
	return append(out, buf...)
}

// Batches starts a producer for epoch and returns its iterator.
func (s *Set) Batches(epoch int) BatchIterator {
	order := s.Order(epoch)
	it := newIterator(s.opts.Prefetch)
	go it.produce(func(emit func(Batch) bool) error {
		for start := 0; start < len(order); start += s.opts.BatchSize {
			end := start + s.opts.BatchSize
			if end > len(order) {
				if s.opts.DropRemainder {
					return nil
				}
				end = len(order)
			}
			b, err := s.load(order[start:end])
			if err != nil {
				return err
			}
			if !emit(b) {
				return nil
			}
		}
		return nil
	})
	return it
}

func (s *Set) load(idx []int) (Batch, error) {
	b := Batch{Features: make([]*mat.Dense, len(idx)), Targets: make([][]int, len(idx))}
	for i, k := range idx {
		ex := s.examples[k]
		f, err := LoadFeatures(ex.features)
		if err != nil {
			if os.IsNotExist(err) {
				return Batch{}, fmt.Errorf("image %d has no feature file %s", ex.imageID, ex.features)
			}
			return Batch{}, err
		}
		b.Features[i] = f
		b.Targets[i] = ex.target
	}
	return b, nil
}
