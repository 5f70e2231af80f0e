/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import "testing"

func TestClampLerp(t *testing.T) {
	cases := []struct {
		name     string
		pos      float64
		n        int
		i0, i1   int
		wantFrac float32
	}{
		{"below range clamps to 0", -1.5, 4, 0, 1, 0},
		{"above range clamps to last", 10, 4, 3, 3, 0},
		{"exact integer", 1.0, 4, 1, 2, 0},
		{"midpoint", 1.5, 4, 1, 2, 0.5},
		{"last element has no upper neighbor", 3.0, 4, 3, 3, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i0, i1, frac := clampLerp(tc.pos, tc.n)
			if i0 != tc.i0 || i1 != tc.i1 {
				t.Fatalf("clampLerp(%v,%d) = (%d,%d), want (%d,%d)", tc.pos, tc.n, i0, i1, tc.i0, tc.i1)
			}
			if frac != tc.wantFrac {
				t.Fatalf("clampLerp(%v,%d) frac = %v, want %v", tc.pos, tc.n, frac, tc.wantFrac)
			}
		})
	}
}

func TestLerp(t *testing.T) {
	if got := lerp(0, 10, 0.5); got != 5 {
		t.Fatalf("lerp(0,10,0.5) = %v, want 5", got)
	}
	if got := lerp(2, 2, 0.7); got != 2 {
		t.Fatalf("lerp(2,2,0.7) = %v, want 2", got)
	}
}

func TestResizeVerticalIdentity(t *testing.T) {
	// 1 plane, 2x2 source, no crop, no resize: output must equal input.
	src := []float32{1, 2, 3, 4}
	dst := make([]float32, 4)
	resizeVertical(dst, src, 2, 2, 2, 1, 2, 0)
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("identity resize: dst[%d] = %v, want %v", i, dst[i], src[i])
		}
	}
}

func TestResizeVerticalCrop(t *testing.T) {
	// 1 plane, 4-row source, crop rows [1,3) down to 2 output rows: should
	// select rows 1 and 2 verbatim (no rescale within a 2-row crop->2-row out).
	src := []float32{
		0, 0,
		10, 10,
		20, 20,
		30, 30,
	}
	dst := make([]float32, 4)
	resizeVertical(dst, src, 2, 4, 2, 1, 2, 1)
	want := []float32{10, 10, 20, 20}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("cropped resize: dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestResizeHorizontalFlip(t *testing.T) {
	// 1 row, 1 plane, 4 source columns, no crop/resize: flip must reverse
	// column order exactly.
	src := []float32{1, 2, 3, 4}
	dst := make([]float32, 4)
	resizeHorizontal(dst, src, 4, 4, 1, 1, 1, 4, 0, true)
	want := []float32{4, 3, 2, 1}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("flip: dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestResizeHorizontalGrayscaleBroadcast(t *testing.T) {
	// srcC=1, dstC=3: every output plane must read the same source plane.
	src := []float32{5, 9} // 1 row, 1 plane, 2 columns
	dst := make([]float32, 2*3)
	resizeHorizontal(dst, src, 2, 2, 1, 3, 1, 2, 0, false)
	for p := 0; p < 3; p++ {
		got0, got1 := dst[p*2+0], dst[p*2+1]
		if got0 != 5 || got1 != 9 {
			t.Fatalf("broadcast plane %d = (%v,%v), want (5,9)", p, got0, got1)
		}
	}
}

func TestColorAugmentGrayscaleOnly(t *testing.T) {
	buf := []float32{10, 20, 30, 40}
	plan := Plan{ContrastShift: 1, SaturationShift: 1}
	colorAugment(buf, 2, 2, 1, 1, plan, [3]float64{0, 0, 0})
	want := []float32{10, 20, 30, 40}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("identity color augment: buf[%d] = %v, want %v", i, buf[i], want[i])
		}
	}
}

func TestChannelMean(t *testing.T) {
	buf := []float32{1, 2, 3, 4, 10, 20, 30, 40}
	if got := channelMean(buf, 0, 4); got != 2.5 {
		t.Fatalf("channelMean plane 0 = %v, want 2.5", got)
	}
	if got := channelMean(buf, 1, 4); got != 25 {
		t.Fatalf("channelMean plane 1 = %v, want 25", got)
	}
}
