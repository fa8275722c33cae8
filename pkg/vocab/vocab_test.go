package vocab

import (
	"path/filepath"
	"reflect"
	"testing"
)

func newWordVocab(t *testing.T, size int, captions ...string) *Vocabulary {
	t.Helper()
	v, err := New(ModeWord, "", size)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := v.Build(captions); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return v
}

func TestReservedIDs(t *testing.T) {
	v := newWordVocab(t, 10, "a dog")
	for word, want := range map[string]int{Pad: 0, Start: 1, End: 2, Unknown: 3} {
		if id, ok := v.ID(word); !ok || id != want {
			t.Errorf("ID(%q) = %d,%v want %d", word, id, ok, want)
		}
	}
}

func TestBuildKeepsMostFrequent(t *testing.T) {
	v := newWordVocab(t, 6, "A cat sat.", "the cat ran", "the CAT!")
	want := []string{Pad, Start, End, Unknown, "cat", "the"}
	if !reflect.DeepEqual(v.Words, want) {
		t.Fatalf("Words = %v, want %v", v.Words, want)
	}
}

func TestEncode(t *testing.T) {
	v := newWordVocab(t, 10, "a dog runs", "a dog")
	tests := []struct {
		name    string
		caption string
		maxLen  int
		want    []int
	}{
		{"known words", "A dog", 0, []int{1, 4, 5, 2}},
		{"unknown word", "a cat", 0, []int{1, 4, 3, 2}},
		{"truncated", "a dog runs", 4, []int{1, 4, 5, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Encode(tt.caption, tt.maxLen)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Encode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcessSentencesPostPads(t *testing.T) {
	v := newWordVocab(t, 10, "a dog runs", "a dog")
	got, err := v.ProcessSentences([]string{"a dog runs", "a"}, 0)
	if err != nil {
		t.Fatalf("ProcessSentences: %v", err)
	}
	want := [][]int{{1, 4, 5, 6, 2}, {1, 4, 2, 0, 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ProcessSentences() = %v, want %v", got, want)
	}
	if text := v.Decode(got[0]); text != "a dog runs" {
		t.Errorf("Decode() = %q", text)
	}
}

func TestSaveLoad(t *testing.T) {
	v := newWordVocab(t, 10, "two birds on a wire")
	path := filepath.Join(t.TempDir(), "vocab", "vocabulary.json")
	if err := v.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got.Words, v.Words) {
		t.Fatalf("Words = %v, want %v", got.Words, v.Words)
	}
	if id, ok := got.ID("wire"); !ok || id != v.index["wire"] {
		t.Errorf("ID(wire) after load = %d,%v", id, ok)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("chars", "", 10); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := New(ModeWord, "", 3); err == nil {
		t.Error("expected error for tiny vocabulary")
	}
}

func TestLoadOrBuildReusesSavedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.json")
	first, loaded, err := LoadOrBuild(path, ModeWord, "", 10, []string{"a dog runs"})
	if err != nil || loaded {
		t.Fatalf("first LoadOrBuild: loaded=%v err=%v", loaded, err)
	}
	second, loaded, err := LoadOrBuild(path, ModeWord, "", 10, []string{"completely different words"})
	if err != nil || !loaded {
		t.Fatalf("second LoadOrBuild: loaded=%v err=%v", loaded, err)
	}
	if !reflect.DeepEqual(first.Words, second.Words) {
		t.Fatalf("Words = %v, want %v", second.Words, first.Words)
	}
}
