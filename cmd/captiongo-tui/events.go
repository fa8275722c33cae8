package main

import (
	"regexp"
	"strconv"
	"time"
)

var (
	batchRE  = regexp.MustCompile(`\[batch\]\s+epoch=(\d+)\s+batch=(\d+)/(\d+)\s+loss=([^\s]+)`)
	epochRE  = regexp.MustCompile(`\[epoch\]\s+epoch=(\d+)/(\d+)\s+loss=([^\s]+)\s+elapsed=([^\s]+)`)
	resumeRE = regexp.MustCompile(`\[resume\]\s+did_resume=true\s+start_epoch=(\d+)`)
	savedRE  = regexp.MustCompile(`\[model\] checkpoint saved: (\S+)`)
	doneRE   = regexp.MustCompile(`\[done\]\s+epochs=(\d+)\s+final_loss=([^\s]+)`)
)

type batchEvent struct {
	epoch   int
	batch   int
	batches int
	loss    float64
}

type epochEvent struct {
	epoch   int
	epochs  int
	loss    float64
	elapsed time.Duration
}

// parseBatch reads a [batch] progress line. Lines may carry a klog header,
// so none of the patterns are anchored.
func parseBatch(line string) (batchEvent, bool) {
	mt := batchRE.FindStringSubmatch(line)
	if len(mt) != 5 {
		return batchEvent{}, false
	}
	loss, err := strconv.ParseFloat(mt[4], 64)
	if err != nil {
		return batchEvent{}, false
	}
	ep, _ := strconv.Atoi(mt[1])
	b, _ := strconv.Atoi(mt[2])
	n, _ := strconv.Atoi(mt[3])
	return batchEvent{epoch: ep, batch: b, batches: n, loss: loss}, true
}

func parseEpoch(line string) (epochEvent, bool) {
	mt := epochRE.FindStringSubmatch(line)
	if len(mt) != 5 {
		return epochEvent{}, false
	}
	loss, err := strconv.ParseFloat(mt[3], 64)
	if err != nil {
		return epochEvent{}, false
	}
	ep, _ := strconv.Atoi(mt[1])
	total, _ := strconv.Atoi(mt[2])
	elapsed, _ := time.ParseDuration(mt[4])
	return epochEvent{epoch: ep, epochs: total, loss: loss, elapsed: elapsed}, true
}

func parseResume(line string) (int, bool) {
	mt := resumeRE.FindStringSubmatch(line)
	if len(mt) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(mt[1])
	return n, err == nil
}

func parseSaved(line string) (string, bool) {
	mt := savedRE.FindStringSubmatch(line)
	if len(mt) != 2 {
		return "", false
	}
	return mt[1], true
}

func parseDone(line string) (int, bool) {
	mt := doneRE.FindStringSubmatch(line)
	if len(mt) != 3 {
		return 0, false
	}
	n, err := strconv.Atoi(mt[1])
	return n, err == nil
}

// progress tracks a run as seen through its log lines.
type progress struct {
	epoch      int
	epochs     int
	batch      int
	batches    int
	startEpoch int
	resumed    bool
	batchLoss  float64
	epochLoss  float64
	elapsed    time.Duration
	saved      string
	done       bool
}

// ratio is the fraction of all batches of the run that have completed.
func (p progress) ratio() float64 {
	if p.epochs <= 0 || p.batches <= 0 || p.epoch <= 0 {
		return 0
	}
	done := float64((p.epoch-1)*p.batches + p.batch)
	r := done / float64(p.epochs*p.batches)
	if r > 1 {
		return 1
	}
	return r
}
