// Package checkpoint persists training snapshots to a directory and restores
// the most recent one.
//
// A directory holds snapshot files named ckpt-<epoch>.json and an index file,
// checkpoint.json, that lists them oldest first. The epoch in the name is the
// number of completed epochs, so it is also the epoch a resumed run starts at.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

const (
	IndexFile  = "checkpoint.json"
	namePrefix = "ckpt-"
	nameSuffix = ".json"
	version    = 2
)

var (
	ErrMissingComponent    = errors.New("checkpoint is missing a component")
	ErrUnexpectedComponent = errors.New("checkpoint has an unexpected component")
)

// Component is anything whose state is saved alongside the others in a
// snapshot: encoder, decoder and optimizer.
type Component interface {
	ExportState() map[string][][]float64
	ImportState(map[string][][]float64) error
}

type Snapshot struct {
	Version    int              `json:"version"`
	CreatedAt  string           `json:"created_at"`
	Epoch      int              `json:"epoch"`
	Losses     Series           `json:"losses"`
	Components map[string]State `json:"components"`
}

// Index orders the snapshots of a directory; the last entry is the latest.
type Index struct {
	Latest      string   `json:"latest"`
	Checkpoints []string `json:"checkpoints"`
}

// RunState is what a run needs to continue where the last one stopped.
type RunState struct {
	DidResume  bool
	StartEpoch int
	Losses     []float64
}

type Manager struct {
	dir        string
	maxToKeep  int
	components map[string]Component
	index      Index
}

func NewManager(dir string, maxToKeep int, components map[string]Component) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("checkpoint directory is empty")
	}
	if maxToKeep < 1 {
		return nil, fmt.Errorf("max checkpoints to keep must be at least 1, got %d", maxToKeep)
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("checkpoint manager needs at least one component")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	idx, err := ReadIndex(dir)
	if err != nil {
		return nil, err
	}
	return &Manager{dir: dir, maxToKeep: maxToKeep, components: components, index: idx}, nil
}

// Latest returns the path of the newest snapshot, or "" when none exists.
func (m *Manager) Latest() string {
	if m.index.Latest == "" {
		return ""
	}
	return filepath.Join(m.dir, m.index.Latest)
}

// Checkpoints lists retained snapshot paths, oldest first.
func (m *Manager) Checkpoints() []string {
	out := make([]string, len(m.index.Checkpoints))
	for i, name := range m.index.Checkpoints {
		out[i] = filepath.Join(m.dir, name)
	}
	return out
}

// Restore loads the latest snapshot into the registered components. An empty
// directory is a fresh start, not an error.
func (m *Manager) Restore() (RunState, error) {
	latest := m.Latest()
	if latest == "" {
		return RunState{}, nil
	}
	epoch, err := EpochFromName(latest)
	if err != nil {
		return RunState{}, err
	}
	snap, err := Load(latest)
	if err != nil {
		return RunState{}, err
	}
	for name := range m.components {
		if _, ok := snap.Components[name]; !ok {
			return RunState{}, fmt.Errorf("%s: %w %q", latest, ErrMissingComponent, name)
		}
	}
	var unexpected []string
	for name := range snap.Components {
		if _, ok := m.components[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return RunState{}, fmt.Errorf("%s: %w %v", latest, ErrUnexpectedComponent, unexpected)
	}
	for _, name := range m.componentNames() {
		if err := m.components[name].ImportState(snap.Components[name]); err != nil {
			return RunState{}, fmt.Errorf("%s: restore %s: %w", latest, name, err)
		}
	}
	klog.V(1).InfoS("restored checkpoint", "path", latest, "epoch", epoch, "losses", len(snap.Losses))
	return RunState{DidResume: true, StartEpoch: epoch, Losses: snap.Losses}, nil
}

// Save writes ckpt-<epoch>.json, records it as the latest snapshot and
// deletes the oldest ones beyond the retention limit.
func (m *Manager) Save(epoch int, losses []float64) (string, error) {
	if epoch < 0 {
		return "", fmt.Errorf("negative checkpoint epoch %d", epoch)
	}
	snap := Snapshot{
		Version:    version,
		CreatedAt:  time.Now().Format(time.RFC3339),
		Epoch:      epoch,
		Losses:     append(Series{}, losses...),
		Components: make(map[string]State, len(m.components)),
	}
	for _, name := range m.componentNames() {
		snap.Components[name] = m.components[name].ExportState()
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	name := Name(epoch)
	path := filepath.Join(m.dir, name)
	if err := writeFileAtomic(path, b); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}

	kept := make([]string, 0, len(m.index.Checkpoints)+1)
	for _, c := range m.index.Checkpoints {
		if c != name {
			kept = append(kept, c)
		}
	}
	kept = append(kept, name)
	var evicted []string
	if len(kept) > m.maxToKeep {
		evicted = kept[:len(kept)-m.maxToKeep]
		kept = kept[len(kept)-m.maxToKeep:]
	}
	idx := Index{Latest: name, Checkpoints: kept}
	if err := writeIndex(m.dir, idx); err != nil {
		return "", err
	}
	m.index = idx
	for _, old := range evicted {
		if err := os.Remove(filepath.Join(m.dir, old)); err != nil && !os.IsNotExist(err) {
			klog.Warningf("[model] could not remove old checkpoint %s: %v", old, err)
			continue
		}
		klog.V(1).InfoS("evicted checkpoint", "name", old)
	}
	return path, nil
}

func (m *Manager) componentNames() []string {
	names := make([]string, 0, len(m.components))
	for name := range m.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name is the snapshot file name for a number of completed epochs.
func Name(epoch int) string { return namePrefix + strconv.Itoa(epoch) + nameSuffix }

// EpochFromName parses the epoch suffix of a snapshot path.
func EpochFromName(path string) (int, error) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, namePrefix) || !strings.HasSuffix(base, nameSuffix) {
		return 0, fmt.Errorf("not a checkpoint name: %s", base)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, namePrefix), nameSuffix))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("checkpoint %s has no epoch suffix", base)
	}
	return n, nil
}

// ReadIndex returns the index of dir. A missing index is an empty one.
func ReadIndex(dir string) (Index, error) {
	b, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if os.IsNotExist(err) {
		return Index{}, nil
	}
	if err != nil {
		return Index{}, err
	}
	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return Index{}, fmt.Errorf("parse %s: %w", IndexFile, err)
	}
	if idx.Latest != "" && (len(idx.Checkpoints) == 0 || idx.Checkpoints[len(idx.Checkpoints)-1] != idx.Latest) {
		return Index{}, fmt.Errorf("invalid %s: latest %q is not the newest entry", IndexFile, idx.Latest)
	}
	return idx, nil
}

func Load(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	if snap.Version != version {
		return Snapshot{}, fmt.Errorf("checkpoint %s has unsupported version %d", path, snap.Version)
	}
	if snap.Components == nil {
		return Snapshot{}, fmt.Errorf("invalid checkpoint %s: no components", path)
	}
	return snap, nil
}

func writeIndex(dir string, idx Index) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, IndexFile), b)
}

// writeFileAtomic replaces path only after the full contents are on disk.
func writeFileAtomic(path string, b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
