package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/config"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/dataset"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/plot"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/train"
)

const usage = `usage: captiongo [klog flags] [command]

commands:
  train                                 train from environment configuration (default)
  validate-dataset [captions] [features] check that every captioned image has features
  gen-demo [dir] [images]               write a small synthetic dataset`

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	defer klog.Flush()

	args := flag.Args()
	cmd := "train"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	var err error
	switch cmd {
	case "train":
		err = runTrain()
	case "validate-dataset":
		err = runValidate(args)
	case "gen-demo":
		err = runGenDemo(args)
	case "help", "-h", "--help":
		flag.Usage()
		return
	default:
		err = fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		klog.ErrorS(err, "command failed", "command", cmd)
		klog.Flush()
		os.Exit(1)
	}
}

func runTrain() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plotter := plot.Plotter{Dir: cfg.SummaryDir, Out: os.Stdout}
	_, err = train.Run(ctx, cfg, train.LogObserver{Interval: cfg.LogInterval}, plotter)
	if errors.Is(err, context.Canceled) {
		klog.Infof("[stop] training interrupted; the current epoch will be repeated on resume")
		return nil
	}
	return err
}

func runValidate(args []string) error {
	captions := normalize(os.Getenv("TRAIN_CAPTIONS_FILE"))
	features := normalize(os.Getenv("TRAIN_FEATURES_DIR"))
	if len(args) > 0 {
		captions = normalize(args[0])
	}
	if len(args) > 1 {
		features = normalize(args[1])
	}
	if captions == "" || features == "" {
		return fmt.Errorf("validate-dataset requires a captions file and a features directory")
	}
	rep, err := dataset.Validate(captions, features)
	if err != nil {
		return err
	}
	fmt.Printf("dataset valid: %s\n", captions)
	fmt.Printf("images: %d\n", rep.Images)
	fmt.Printf("captions: %d\n", rep.Annotations)
	fmt.Printf("features: %d regions x %d\n", rep.Regions, rep.FeatureDim)
	return nil
}

func runGenDemo(args []string) error {
	dir := "data"
	images := 64
	if len(args) > 0 {
		dir = normalize(args[0])
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(normalize(args[1]))
		if err != nil || n < 1 {
			return fmt.Errorf("invalid image count %q", args[1])
		}
		images = n
	}
	captions, features, err := dataset.WriteSynthetic(dir, dataset.SyntheticOptions{
		Images:     images,
		Regions:    8,
		FeatureDim: 16,
		Seed:       42,
	})
	if err != nil {
		return err
	}
	abs, _ := filepath.Abs(dir)
	fmt.Printf("demo dataset written to %s\n", abs)
	fmt.Printf("TRAIN_CAPTIONS_FILE=%s\n", captions)
	fmt.Printf("TRAIN_FEATURES_DIR=%s\n", features)
	return nil
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}
