package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/checkpoint"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/plot"
)

type CheckpointInfo struct {
	ID         string   `json:"id"`
	Object     string   `json:"object"`
	Epoch      int      `json:"epoch"`
	CreatedAt  string   `json:"created_at"`
	Loss       *float64 `json:"loss,omitempty"`
	Components []string `json:"components"`
	Latest     bool     `json:"latest"`
}

type CheckpointList struct {
	Object string           `json:"object"`
	Latest string           `json:"latest"`
	Data   []CheckpointInfo `json:"data"`
}

type LossHistory struct {
	Object    string            `json:"object"`
	Source    string            `json:"source"`
	Epochs    int               `json:"epochs"`
	Loss      checkpoint.Series `json:"loss"`
	Sparkline string            `json:"sparkline"`
}

type server struct {
	checkpointsDir string
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/v1/checkpoints", s.handleCheckpoints)
	mux.HandleFunc("/v1/losses", s.handleLosses)
	return mux
}

func (s *server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idx, err := checkpoint.ReadIndex(s.checkpointsDir)
	if err != nil {
		klog.ErrorS(err, "read checkpoint index", "dir", s.checkpointsDir)
		http.Error(w, "checkpoint index unreadable", http.StatusInternalServerError)
		return
	}
	resp := CheckpointList{Object: "list", Latest: idx.Latest, Data: []CheckpointInfo{}}
	for i := len(idx.Checkpoints) - 1; i >= 0; i-- {
		name := idx.Checkpoints[i]
		info := CheckpointInfo{ID: name, Object: "checkpoint", Latest: name == idx.Latest}
		info.Epoch, _ = checkpoint.EpochFromName(name)
		snap, err := checkpoint.Load(filepath.Join(s.checkpointsDir, name))
		if err != nil {
			klog.V(1).InfoS("skip unreadable checkpoint", "name", name, "err", err)
			resp.Data = append(resp.Data, info)
			continue
		}
		info.CreatedAt = snap.CreatedAt
		if n := len(snap.Losses); n > 0 && !math.IsNaN(snap.Losses[n-1]) && !math.IsInf(snap.Losses[n-1], 0) {
			l := snap.Losses[n-1]
			info.Loss = &l
		}
		for c := range snap.Components {
			info.Components = append(info.Components, c)
		}
		sort.Strings(info.Components)
		resp.Data = append(resp.Data, info)
	}
	writeJSON(w, resp)
}

func (s *server) handleLosses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idx, err := checkpoint.ReadIndex(s.checkpointsDir)
	if err != nil {
		http.Error(w, "checkpoint index unreadable", http.StatusInternalServerError)
		return
	}
	if idx.Latest == "" {
		http.Error(w, "no checkpoints yet", http.StatusNotFound)
		return
	}
	snap, err := checkpoint.Load(filepath.Join(s.checkpointsDir, idx.Latest))
	if err != nil {
		klog.ErrorS(err, "load checkpoint", "name", idx.Latest)
		http.Error(w, "latest checkpoint unreadable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, LossHistory{
		Object:    "losses",
		Source:    idx.Latest,
		Epochs:    len(snap.Losses),
		Loss:      snap.Losses,
		Sparkline: plot.Sparkline(snap.Losses, 32),
	})
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Caption trainer status for %s.\n\nEndpoints:\n- GET /v1/checkpoints\n- GET /v1/losses\n", s.checkpointsDir)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.V(1).InfoS("write response", "err", err)
	}
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	dir := strings.TrimSpace(os.Getenv("CHECKPOINTS_DIR"))
	if dir == "" {
		dir = "./models/"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "7860"
	}
	s := &server{checkpointsDir: dir}
	klog.Infof("Serving checkpoint status for %s on port %s...", dir, port)
	if err := http.ListenAndServe(":"+port, s.routes()); err != nil {
		klog.Fatalf("Failed to start server: %v", err)
	}
}
