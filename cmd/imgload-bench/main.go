// Command imgload-bench exercises the imgload dispatcher end to end against
// a directory of images. It exists only for manual testing and
// benchmarking: the "command parser" that fills a production Configuration
// record is explicitly out of core scope (SPEC_FULL.md §1), so this binary
// is a thin, disposable stand-in, not the caller the core is designed for.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/cortexlabs/imgload/internal/nlog"
	"github.com/cortexlabs/imgload/pkg/imgload"
)

func main() {
	var (
		dir        = flag.String("dir", ".", "directory of images to ingest")
		resizeS    = flag.Int("resize", 0, "shortest-side resize target (0 disables)")
		fixedH     = flag.Int("fixed-h", 0, "fixed output height (requires -fixed-w, implies -pack capable)")
		fixedW     = flag.Int("fixed-w", 0, "fixed output width")
		pack       = flag.Bool("pack", false, "emit a single packed (H,W,3,N) tensor")
		threads    = flag.Int("threads", 4, "worker pool size")
		verbose    = flag.Int("v", 0, "log verbosity")
		flipFlag   = flag.Bool("flip", false, "enable horizontal flip augmentation")
		cropRandom = flag.Bool("crop-random", false, "random crop placement instead of center")
	)
	flag.Parse()
	nlog.SetVerbosity(*verbose)

	files, err := listImages(*dir)
	if err != nil {
		nlog.Errorln(err)
		os.Exit(1)
	}
	if len(files) == 0 {
		nlog.Errorln("no images found under", *dir)
		os.Exit(1)
	}

	cfg := imgload.DefaultConfig()
	cfg.NumThreads = *threads
	cfg.Verbose = *verbose
	cfg.Flip = *flipFlag
	if *cropRandom {
		cfg.CropLocation = imgload.CropRandom
	}
	switch {
	case *fixedH > 0 && *fixedW > 0:
		cfg.ResizeMode = imgload.ResizeFixed
		cfg.FixedHeight, cfg.FixedWidth = *fixedH, *fixedW
	case *resizeS > 0:
		cfg.ResizeMode = imgload.ResizeShortestSide
		cfg.ShortSide = *resizeS
	}
	cfg.Pack = *pack

	reader := func() imgload.ImageReader { return &stdlibReader{} }
	alloc := &sliceAllocator{}

	if err := imgload.InitGlobal(alloc, noGPUStreamFactory, reader, cfg.NumThreads); err != nil {
		nlog.Errorln(err)
		os.Exit(1)
	}
	defer imgload.CloseGlobal()

	start := time.Now()
	res, err := imgload.DispatchGlobal(files, cfg)
	if err != nil {
		nlog.Errorln(err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	if res.Pack != nil {
		h, w, c, n := res.Pack.Shape()
		fmt.Printf("packed output: (%d,%d,%d,%d) in %s\n", h, w, c, n, elapsed)
	} else {
		ok := 0
		for _, t := range res.PerItem {
			if t != nil {
				ok++
			}
		}
		fmt.Printf("%d/%d items decoded in %s\n", ok, len(res.PerItem), elapsed)
	}
	for _, w := range res.Warnings {
		fmt.Println("warning:", w)
	}
}

func listImages(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".jpg", ".jpeg", ".png":
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// stdlibReader binds imgload's ImageReader boundary to the standard
// library's image package -- one concrete choice among many the core
// treats as an external collaborator (SPEC_FULL.md §1).
type stdlibReader struct{}

func (r *stdlibReader) ProbeShape(path string) (imgload.Shape, error) {
	f, err := os.Open(path)
	if err != nil {
		return imgload.Shape{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return imgload.Shape{}, err
	}
	return imgload.Shape{H: cfg.Height, W: cfg.Width, C: channelsOf(cfg.ColorModel)}, nil
}

func (r *stdlibReader) DecodePixels(path string, out *imgload.BufferPool) (imgload.Shape, []float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return imgload.Shape{}, nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return imgload.Shape{}, nil, err
	}
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	c := channelsOf(img.ColorModel())
	n := h * w
	dst := out.Get(0, c*n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r16, g16, b16, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := y*w + x
			if c == 1 {
				dst[idx] = float32(r16 >> 8)
				continue
			}
			dst[0*n+idx] = float32(r16 >> 8)
			dst[1*n+idx] = float32(g16 >> 8)
			dst[2*n+idx] = float32(b16 >> 8)
		}
	}
	return imgload.Shape{H: h, W: w, C: c}, dst, nil
}

func channelsOf(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	default:
		return 3
	}
}
