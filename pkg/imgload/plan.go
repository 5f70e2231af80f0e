/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"math"
	"math/rand"
	"time"
)

// planRNG is the explicit, per-batch random source used when deriving
// transform plans. The teacher's origin uses a process-global PRNG for
// anisotropy, crop placement, flip, and augmentation noise; per
// SPEC_FULL.md §9 this implementation keeps ownership explicit instead,
// seeded once per batch so that a pinned seed reproduces S5's exact
// sequence. Plans are derived sequentially by the coordinator between
// phases (never concurrently, never under the queue mutex), so a single
// *rand.Rand needs no locking of its own.
type planRNG struct{ r *rand.Rand }

func newPlanRNG(seed int64) *planRNG {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &planRNG{r: rand.New(rand.NewSource(seed))}
}

func (p *planRNG) uniform(lo, hi float64) float64 {
	if lo >= hi {
		return lo
	}
	return lo + p.r.Float64()*(hi-lo)
}

func (p *planRNG) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return p.r.Intn(n + 1)
}

func (p *planRNG) bit() bool { return p.r.Intn(2) == 1 }

func (p *planRNG) normal() float64 { return p.r.NormFloat64() }

// derivePlan computes item.Plan per SPEC_FULL.md §4.F "Transform plan
// derivation". outC is 1 or 3 per the packing policy (§4.C, Data Model
// invariant 4).
func derivePlan(cfg *Config, in Shape, outC int, rng *planRNG) Plan {
	var plan Plan
	plan.OutC = outC

	// 1. output dimensions from resize mode.
	switch cfg.ResizeMode {
	case ResizeFixed:
		plan.OutH, plan.OutW = cfg.FixedHeight, cfg.FixedWidth
	case ResizeShortestSide:
		plan.OutH, plan.OutW = shortestSideDims(in.H, in.W, cfg.ShortSide)
	default: // ResizeNone
		plan.OutH, plan.OutW = in.H, in.W
	}

	// 2. anisotropy and crop size in output-aspect units.
	var anisotropy float64
	if cfg.CropAnisotropy.Min == 0 && cfg.CropAnisotropy.Max == 0 {
		anisotropy = (float64(plan.OutW) / float64(plan.OutH)) / (float64(in.W) / float64(in.H))
	} else {
		anisotropy = rng.uniform(cfg.CropAnisotropy.Min, cfg.CropAnisotropy.Max)
	}
	cropW := float64(plan.OutW) * anisotropy
	cropH := float64(plan.OutH) / anisotropy

	// 3. scale crop to fit the input.
	scale := math.Min(float64(in.W)/cropW, float64(in.H)/cropH)
	size := rng.uniform(cfg.CropSize.Min, cfg.CropSize.Max)
	cropW = math.Round(cropW * scale * size)
	cropH = math.Round(cropH * scale * size)
	plan.CropW = clampInt(int(cropW), 1, in.W)
	plan.CropH = clampInt(int(cropH), 1, in.H)

	// 4. place the crop.
	dx := in.W - plan.CropW
	dy := in.H - plan.CropH
	switch cfg.CropLocation {
	case CropCenter:
		plan.CropX = (dx + 1) / 2
		plan.CropY = (dy + 1) / 2
	case CropRandom:
		plan.CropX = rng.intn(dx)
		plan.CropY = rng.intn(dy)
	}

	// 5. flip.
	plan.Flip = cfg.Flip && rng.bit()

	// 6. saturation / contrast noise.
	plan.SaturationShift = 1 + cfg.Saturation*rng.uniform(-1, 1)
	plan.ContrastShift = 1 + cfg.Contrast*rng.uniform(-1, 1)

	// 7. brightness noise. NOTE: this preserves the source's observed
	// behavior of indexing the weight vector by i in both factors of the
	// "matrix-vector product" (brightness_shift[i] += B[i+3j]*w[i]) rather
	// than the w[j] a true B*w product would use. SPEC_FULL.md §9 flags
	// this as almost certainly a typo in the original and directs
	// implementers to preserve it rather than silently fix it.
	w := [3]float64{rng.normal(), rng.normal(), rng.normal()}
	for i := 0; i < 3; i++ {
		var sum float64
		for j := 0; j < 3; j++ {
			sum += cfg.Brightness[i+3*j] * w[i]
		}
		plan.BrightnessShift[i] = sum
	}

	return plan
}

// shortestSideDims scales (h,w) so the shorter side maps to side, per §4.F
// step 1: scale = max(side/w, side/h); the larger dimension is rounded to
// nearest, minimum 1.
func shortestSideDims(h, w, side int) (outH, outW int) {
	scale := math.Max(float64(side)/float64(w), float64(side)/float64(h))
	outH = maxInt(1, int(math.Round(float64(h)*scale)))
	outW = maxInt(1, int(math.Round(float64(w)*scale)))
	return
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
