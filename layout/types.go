// Package layout defines tensor data types, the closed set of memory layout
// tags, padding, and the pitch/address arithmetic that addresses a tensor
// buffer in linear device memory.
//
// A tensor's buffer size is its logical 4-D shape (batch B, feature F,
// spatial Y, spatial X) plus both paddings on every dimension; addressing
// within that buffer uses per-dimension pitches computed from the chosen
// Tag. A producer's tensor is layout-compatible with a consumer's only when
// their Tag and DataType agree and the producer's padding is at least the
// consumer's on every side — anything else requires a reorder between them.
//
// Complexity: Pitches/Offset are O(1); nothing here allocates beyond the
// Shape/Padding value itself.
package layout

import (
	"errors"
	"fmt"
)

// Sentinel errors for layout operations.
var (
	// ErrInvalidShape indicates a non-positive dimension in a Shape.
	ErrInvalidShape = errors.New("layout: shape dimensions must be > 0")
	// ErrOutOfRange indicates an (b,f,y,x) index outside the buffer bounds.
	ErrOutOfRange = errors.New("layout: index out of buffer range")
	// ErrIncompatible indicates two tensors cannot be connected without a reorder.
	ErrIncompatible = errors.New("layout: incompatible layout/padding between producer and consumer")
)

// DataType is the element type carried by a tensor.
type DataType int

const (
	// Half is a 16-bit floating point element type.
	Half DataType = iota
	// Float is a 32-bit floating point element type.
	Float
	// Int8 is an 8-bit signed integer element type, weights only.
	Int8
)

// String renders the DataType the way build options and log fields expect.
func (d DataType) String() string {
	switch d {
	case Half:
		return "f16"
	case Float:
		return "f32"
	case Int8:
		return "i8"
	default:
		return "unknown"
	}
}

// Tag is the closed set of memory layout tags a tensor buffer may carry.
type Tag int

const (
	// Bf is a planar batch-feature layout (no spatial dims).
	Bf Tag = iota
	// Fb is a planar feature-batch layout.
	Fb
	// Bfyx is planar batch-feature-y-x, the default activation layout.
	Bfyx
	// Yxfb is planar y-x-feature-batch.
	Yxfb
	// Byxf is planar batch-y-x-feature ("packed").
	Byxf
	// Fyxb is planar feature-y-x-batch.
	Fyxb
	// BsF_bsv8_af8 is a blocked batch-slice layout, slice size 8.
	BsF_bsv8_af8
	// BsF_bsv16_af8 is a blocked batch-slice layout, slice size 16.
	BsF_bsv16_af8
	// Brfyx is a blocked batch-row layout.
	Brfyx

	// Weights-only layouts.

	// WeightsOi is output-input.
	WeightsOi
	// WeightsIo is input-output.
	WeightsIo
	// WeightsOiyx is output-input-y-x.
	WeightsOiyx
	// WeightsOyxi is output-y-x-input.
	WeightsOyxi
	// WeightsIyxo is input-y-x-output.
	WeightsIyxo
	// WeightsYxio is y-x-input-output.
	WeightsYxio
	// WeightsOsIyxOsv16 is output-slice, input-y-x, slice-vector 16.
	WeightsOsIyxOsv16
	// WeightsOsIOsv16 is output-slice, input, slice-vector 16.
	WeightsOsIOsv16
	// WeightsOsIOsv8Ai8 is output-slice, input, slice-vector 8, aligned-input 8.
	WeightsOsIOsv8Ai8
	// WeightsOsIOsv16Ai8 is output-slice, input, slice-vector 16, aligned-input 8.
	WeightsOsIOsv16Ai8
	// WeightsIYxsOsYxsv2Osv16 is the i_yxs_os_yxsv2_osv16 deconvolution layout.
	WeightsIYxsOsYxsv2Osv16
	// WeightsIyXsOsXsv2Osv16Ao32 is the iy_xs_os_xsv2_osv16__ao32 layout.
	WeightsIyXsOsXsv2Osv16Ao32
	// WeightsIyXsOsXsv2Osv8Ao32 is the iy_xs_os_xsv2_osv8__ao32 layout.
	WeightsIyXsOsXsv2Osv8Ao32
	// WeightsWinogradF2x3 is the Winograd F(2,3) weight transform domain.
	WeightsWinogradF2x3
)

// String renders the Tag the way log fields and the selector's registry keys expect.
func (t Tag) String() string {
	names := map[Tag]string{
		Bf: "bf", Fb: "fb", Bfyx: "bfyx", Yxfb: "yxfb", Byxf: "byxf", Fyxb: "fyxb",
		BsF_bsv8_af8: "bs_f_bsv8__af8", BsF_bsv16_af8: "bs_f_bsv16__af8", Brfyx: "brfyx",
		WeightsOi: "oi", WeightsIo: "io", WeightsOiyx: "oiyx", WeightsOyxi: "oyxi",
		WeightsIyxo: "iyxo", WeightsYxio: "yxio", WeightsOsIyxOsv16: "os_iyx_osv16",
		WeightsOsIOsv16: "os_i_osv16", WeightsOsIOsv8Ai8: "os_i_osv8__ai8",
		WeightsOsIOsv16Ai8: "os_i_osv16__ai8", WeightsIYxsOsYxsv2Osv16: "i_yxs_os_yxsv2_osv16",
		WeightsIyXsOsXsv2Osv16Ao32: "iy_xs_os_xsv2_osv16__ao32",
		WeightsIyXsOsXsv2Osv8Ao32:  "iy_xs_os_xsv2_osv8__ao32",
		WeightsWinogradF2x3:        "winograd_2x3_s1_data",
	}
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// IsWeights reports whether a tag is one of the weights-only layouts.
func (t Tag) IsWeights() bool {
	return t >= WeightsOi
}

// Shape is the logical 4-D extent of a tensor: batch, feature, spatial-y, spatial-x.
type Shape struct {
	B, F, Y, X int
}

// Validate reports ErrInvalidShape if any dimension is non-positive.
func (s Shape) Validate() error {
	if s.B <= 0 || s.F <= 0 || s.Y <= 0 || s.X <= 0 {
		return ErrInvalidShape
	}
	return nil
}

// Count returns the number of logical elements, B*F*Y*X.
func (s Shape) Count() int {
	return s.B * s.F * s.Y * s.X
}

// Padding is a per-tensor lower/upper pad on each of the four dimensions,
// plus the fill value used in the padded region.
type Padding struct {
	LowerB, LowerF, LowerY, LowerX int
	UpperB, UpperF, UpperY, UpperX int
	FillValue                     float64
}

// Zero reports whether this padding adds no elements on any dimension.
func (p Padding) Zero() bool {
	return p == Padding{}
}

// BufferShape returns the physical shape backing a tensor of logical shape s
// once lower/upper padding on every dimension is accounted for.
func (s Shape) BufferShape(p Padding) Shape {
	return Shape{
		B: s.B + p.LowerB + p.UpperB,
		F: s.F + p.LowerF + p.UpperF,
		Y: s.Y + p.LowerY + p.UpperY,
		X: s.X + p.LowerX + p.UpperX,
	}
}

// Tensor fully describes one buffer's logical contents and how they are
// physically laid out: data type, logical shape, layout tag and padding.
type Tensor struct {
	DataType DataType
	Shape    Shape
	Tag      Tag
	Padding  Padding
}

// BufferSize returns the total element count of the physical buffer,
// logical size plus both paddings on every dimension.
func (t Tensor) BufferSize() int {
	return t.Shape.BufferShape(t.Padding).Count()
}

// CompatibleWith reports whether a consumer expecting tensor `want` can
// directly read a producer's output tensor `have` without an inserted
// reorder: same Tag, same DataType, and `have`'s padding satisfies `want`'s
// (have's padding must be >= want's on every side).
func (want Tensor) CompatibleWith(have Tensor) bool {
	if want.Tag != have.Tag || want.DataType != have.DataType {
		return false
	}
	p, q := want.Padding, have.Padding
	return q.LowerB >= p.LowerB && q.LowerF >= p.LowerF && q.LowerY >= p.LowerY && q.LowerX >= p.LowerX &&
		q.UpperB >= p.UpperB && q.UpperF >= p.UpperF && q.UpperY >= p.UpperY && q.UpperX >= p.UpperX
}

// Reinterpretable reports whether a tensor physically laid out as `from`
// can be viewed as `to` without copying: identical buffer size, identical
// padding, and the same linear traversal order (same Tag family, since
// pitches are only commutable within a family — conservatively, identical
// tags only). This backs Pass 10's `requires_reinterpret` and Pass 14's
// reshape buffer fusing.
func Reinterpretable(from, to Tensor) bool {
	return from.Tag == to.Tag && from.Padding == to.Padding && from.Shape.Count() == to.Shape.Count()
}
