/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ResizeMode selects how an item's output dimensions are derived from its
// input shape.
type ResizeMode int

const (
	// ResizeNone keeps the input's own dimensions as output dimensions.
	ResizeNone ResizeMode = iota
	// ResizeShortestSide scales so the shorter input side maps to ShortSide.
	ResizeShortestSide
	// ResizeFixed resizes to a fixed (Height, Width), independent of input shape.
	ResizeFixed
)

// CropLocation selects where the crop rectangle is placed within the input.
type CropLocation int

const (
	CropCenter CropLocation = iota
	CropRandom
)

// Range is an inclusive [Min, Max] interval used for crop anisotropy and
// crop-size sampling.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Config is the immutable-per-batch configuration record described in
// SPEC_FULL.md §6. It is the wire shape a caller's command parser fills in;
// imgload only owns validation and consumption, not parsing the command
// line or RPC layer that produces one.
type Config struct {
	NumThreads int  `json:"num_threads"`
	Prefetch   bool `json:"prefetch"`

	ResizeMode  ResizeMode `json:"resize_mode"`
	ShortSide   int        `json:"short_side,omitempty"`
	FixedHeight int        `json:"fixed_height,omitempty"`
	FixedWidth  int        `json:"fixed_width,omitempty"`

	Pack bool `json:"pack"`
	GPU  bool `json:"gpu"`

	SubtractAverage [3]float64    `json:"subtract_average"`
	Brightness      [9]float64    `json:"brightness"` // column-major 3x3
	Contrast        float64       `json:"contrast"`
	Saturation      float64       `json:"saturation"`

	CropAnisotropy Range        `json:"crop_anisotropy"`
	CropSize       Range        `json:"crop_size"`
	CropLocation   CropLocation `json:"crop_location"`
	Flip           bool         `json:"flip"`

	Verbose int `json:"verbose"`

	// Seed pins the per-batch RNG stream; zero means derive one from the
	// current time. Exposed for the reproducibility contract in §8 S5.
	Seed int64 `json:"seed,omitempty"`
}

// DefaultConfig returns the coordinator's init defaults: no resize, no
// augmentation, center crop of the full image, individual packing, CPU.
func DefaultConfig() Config {
	return Config{
		NumThreads:     1,
		ResizeMode:     ResizeNone,
		CropAnisotropy: Range{0, 0},
		CropSize:       Range{1, 1},
		CropLocation:   CropCenter,
		Contrast:       0,
		Saturation:     0,
	}
}

// Validate performs every Configuration-kind check from SPEC_FULL.md §7,
// returning the first violation found. num_threads<1 is coerced to 1 rather
// than rejected, per S5, and is therefore not validated here -- see
// Sanitize.
func (c *Config) Validate() error {
	if c.Pack && c.ResizeMode != ResizeFixed {
		return newConfigErr("pack mode requires a fixed-size resize")
	}
	if c.ResizeMode == ResizeFixed && (c.FixedHeight <= 0 || c.FixedWidth <= 0) {
		return newConfigErr("fixed resize requires positive height and width, got %dx%d", c.FixedHeight, c.FixedWidth)
	}
	if c.ResizeMode == ResizeShortestSide && c.ShortSide <= 0 {
		return newConfigErr("shortest-side resize requires a positive side, got %d", c.ShortSide)
	}
	if c.Contrast < 0 || c.Contrast > 1 {
		return newConfigErr("contrast must be in [0,1], got %v", c.Contrast)
	}
	if c.Saturation < 0 || c.Saturation > 1 {
		return newConfigErr("saturation must be in [0,1], got %v", c.Saturation)
	}
	if c.CropAnisotropy.Min < 0 || c.CropAnisotropy.Min > c.CropAnisotropy.Max {
		return newConfigErr("crop_anisotropy range invalid: [%v,%v]", c.CropAnisotropy.Min, c.CropAnisotropy.Max)
	}
	if c.CropSize.Min < 0 || c.CropSize.Min > c.CropSize.Max || c.CropSize.Max > 1 {
		return newConfigErr("crop_size range invalid: [%v,%v]", c.CropSize.Min, c.CropSize.Max)
	}
	return nil
}

// Sanitize coerces num_threads<1 to 1 and reports whether it did so, so the
// caller can log a warning -- matching S5's "coerced, not rejected".
func (c *Config) Sanitize() (coerced bool) {
	if c.NumThreads < 1 {
		c.NumThreads = 1
		coerced = true
	}
	return coerced
}

// MarshalJSON and UnmarshalJSON round-trip Config through jsoniter, the
// teacher's choice for every wire-format struct.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	return jsonAPI.Marshal(alias(c))
}

func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	var a alias
	if err := jsonAPI.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = Config(a)
	return nil
}
