// Package vocab turns caption text into padded token id sequences.
package vocab

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	Pad     = "<pad>"
	Start   = "<start>"
	End     = "<end>"
	Unknown = "<unk>"
)

const (
	ModeWord = "word"
	ModeBPE  = "bpe"
)

// PadID is reserved; masked loss relies on it being zero.
const PadID = 0

const punctuation = "!\"#$%&()*+.,-/:;=?@[\\]^_`{|}~"

// Vocabulary maps caption tokens to ids. Ids 0..3 are always the pad, start,
// end and unknown markers, followed by the most frequent tokens.
type Vocabulary struct {
	Mode        string   `json:"mode"`
	BPEEncoding string   `json:"bpe_encoding,omitempty"`
	MaxSize     int      `json:"max_size"`
	Words       []string `json:"words"`

	index map[string]int
	bpe   *tiktoken.Tiktoken
}

// New returns an empty vocabulary holding only the reserved markers.
func New(mode, bpeEncoding string, maxSize int) (*Vocabulary, error) {
	switch mode {
	case "", ModeWord:
		mode = ModeWord
	case ModeBPE:
		if strings.TrimSpace(bpeEncoding) == "" {
			bpeEncoding = "cl100k_base"
		}
	default:
		return nil, fmt.Errorf("unknown tokenizer mode %q: use word or bpe", mode)
	}
	if maxSize < 5 {
		return nil, fmt.Errorf("vocabulary size must be at least 5, got %d", maxSize)
	}
	v := &Vocabulary{Mode: mode, BPEEncoding: bpeEncoding, MaxSize: maxSize}
	v.reset([]string{Pad, Start, End, Unknown})
	return v, nil
}

func (v *Vocabulary) reset(words []string) {
	v.Words = words
	v.index = make(map[string]int, len(words))
	for i, w := range words {
		v.index[w] = i
	}
}

func (v *Vocabulary) encoder() (*tiktoken.Tiktoken, error) {
	if v.bpe != nil {
		return v.bpe, nil
	}
	enc, err := tiktoken.GetEncoding(v.BPEEncoding)
	if err != nil {
		return nil, fmt.Errorf("load bpe encoding %s: %w", v.BPEEncoding, err)
	}
	v.bpe = enc
	return enc, nil
}

// Tokenize splits a caption into vocabulary tokens, without markers.
func (v *Vocabulary) Tokenize(caption string) ([]string, error) {
	if v.Mode == ModeBPE {
		enc, err := v.encoder()
		if err != nil {
			return nil, err
		}
		ids := enc.EncodeOrdinary(strings.ToLower(strings.TrimSpace(caption)))
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = "bpe:" + strconv.Itoa(id)
		}
		return out, nil
	}
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) || unicode.IsSpace(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, caption)
	return strings.Fields(cleaned), nil
}

// Build keeps the MaxSize-4 most frequent tokens. Ties keep first-seen order.
func (v *Vocabulary) Build(captions []string) error {
	counts := map[string]int{}
	var order []string
	for _, c := range captions {
		toks, err := v.Tokenize(c)
		if err != nil {
			return err
		}
		for _, t := range toks {
			if _, seen := counts[t]; !seen {
				order = append(order, t)
			}
			counts[t]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	words := []string{Pad, Start, End, Unknown}
	for _, t := range order {
		if len(words) >= v.MaxSize {
			break
		}
		words = append(words, t)
	}
	v.reset(words)
	return nil
}

// ID looks up a token or marker.
func (v *Vocabulary) ID(word string) (int, bool) {
	id, ok := v.index[word]
	return id, ok
}

// Len is the number of ids the decoder must score.
func (v *Vocabulary) Len() int { return len(v.Words) }

// Word returns the token for id, or the unknown marker.
func (v *Vocabulary) Word(id int) string {
	if id < 0 || id >= len(v.Words) {
		return Unknown
	}
	return v.Words[id]
}

// Encode wraps a caption in start/end markers. Unknown tokens map to <unk>.
// When maxLen > 0 the caption is truncated so the end marker always fits.
func (v *Vocabulary) Encode(caption string, maxLen int) ([]int, error) {
	toks, err := v.Tokenize(caption)
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && len(toks) > maxLen-2 {
		if maxLen < 2 {
			return nil, fmt.Errorf("max caption length %d cannot hold start and end markers", maxLen)
		}
		toks = toks[:maxLen-2]
	}
	unk := v.index[Unknown]
	out := make([]int, 0, len(toks)+2)
	out = append(out, v.index[Start])
	for _, t := range toks {
		id, ok := v.index[t]
		if !ok {
			id = unk
		}
		out = append(out, id)
	}
	return append(out, v.index[End]), nil
}

// ProcessSentences encodes every caption and post-pads them with PadID to
// the length of the longest one.
func (v *Vocabulary) ProcessSentences(captions []string, maxLen int) ([][]int, error) {
	seqs := make([][]int, len(captions))
	longest := 0
	for i, c := range captions {
		ids, err := v.Encode(c, maxLen)
		if err != nil {
			return nil, fmt.Errorf("caption %d: %w", i, err)
		}
		seqs[i] = ids
		if len(ids) > longest {
			longest = len(ids)
		}
	}
	for i, s := range seqs {
		padded := make([]int, longest)
		copy(padded, s)
		seqs[i] = padded
	}
	return seqs, nil
}

// Decode joins ids back into text, skipping markers.
func (v *Vocabulary) Decode(ids []int) string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		w := v.Word(id)
		switch w {
		case Pad, Start, End:
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

func (v *Vocabulary) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func Load(path string) (*Vocabulary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v Vocabulary
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	if len(v.Words) < 4 || v.Words[PadID] != Pad || v.Words[1] != Start || v.Words[2] != End || v.Words[3] != Unknown {
		return nil, fmt.Errorf("invalid vocabulary %s: reserved markers missing", path)
	}
	if v.Mode == "" {
		v.Mode = ModeWord
	}
	v.reset(v.Words)
	return &v, nil
}

// LoadOrBuild reuses the vocabulary at path when it exists so that a resumed
// run keeps the ids its checkpoints were trained with. Otherwise it builds
// one from captions and saves it. The bool reports whether it was loaded.
func LoadOrBuild(path, mode, bpeEncoding string, maxSize int, captions []string) (*Vocabulary, bool, error) {
	if _, err := os.Stat(path); err == nil {
		v, err := Load(path)
		return v, err == nil, err
	} else if !os.IsNotExist(err) {
		return nil, false, err
	}
	v, err := New(mode, bpeEncoding, maxSize)
	if err != nil {
		return nil, false, err
	}
	if err := v.Build(captions); err != nil {
		return nil, false, err
	}
	if err := v.Save(path); err != nil {
		return nil, false, fmt.Errorf("save vocabulary: %w", err)
	}
	return v, false, nil
}
