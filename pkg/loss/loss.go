// Package loss implements the padding-aware cross entropy used for captions.
package loss

import (
	"errors"
	"fmt"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
)

// PadID labels are excluded from the loss.
const PadID = 0

var ErrEmptyBatch = errors.New("loss over empty batch")

// Masked returns the mean over the batch of sparse categorical cross entropy
// from logits, with padded positions contributing exactly zero. Padded
// examples still count toward the batch size.
func Masked(labels []int, logits [][]*autograd.Value) (*autograd.Value, error) {
	if len(labels) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(labels) != len(logits) {
		return nil, fmt.Errorf("got %d labels for %d logit rows", len(labels), len(logits))
	}
	terms := make([]*autograd.Value, len(labels))
	for i, label := range labels {
		row := logits[i]
		if label < 0 || label >= len(row) {
			return nil, fmt.Errorf("label %d at position %d outside vocabulary of %d", label, i, len(row))
		}
		mask := 1.0
		if label == PadID {
			mask = 0
		}
		ce := autograd.Sub(autograd.LogSumExp(row), row[label])
		terms[i] = autograd.Scale(ce, mask)
	}
	return autograd.Scale(autograd.Sum(terms...), 1/float64(len(labels))), nil
}
