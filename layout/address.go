package layout

// Pitches holds the per-dimension linear stride, in elements, for a
// physical buffer of a given Tag/Shape/Padding. Index order follows the
// tag's natural traversal (fastest-varying dimension has pitch 1); Offset
// walks the four logical indices through these strides the same way
// matrix.Dense addresses (row, col) through a single row pitch, generalized
// to four dimensions and an arbitrary dimension order.
type Pitches struct {
	order  [4]dim   // traversal order, fastest-varying last
	stride [4]int   // stride per dimension in `order`
	base   int      // offset of logical (0,0,0,0) within the buffer
	bshape Shape    // physical (padded) shape
}

type dim int

const (
	dimB dim = iota
	dimF
	dimY
	dimX
)

// order returns the dimension traversal order for a tag, fastest-varying
// last, matching the layout family named by the tag string.
func (t Tag) order() [4]dim {
	switch t {
	case Fb, WeightsIo, WeightsYxio:
		return [4]dim{dimY, dimX, dimF, dimB}
	case Fyxb, WeightsIyxo:
		return [4]dim{dimF, dimY, dimX, dimB}
	case Byxf:
		return [4]dim{dimB, dimY, dimX, dimF}
	case Yxfb:
		return [4]dim{dimY, dimX, dimF, dimB}
	default: // Bfyx, Bf and blocked/weights layouts default to batch-feature-y-x traversal
		return [4]dim{dimB, dimF, dimY, dimX}
	}
}

// NewPitches computes the pitch table for a tensor of the given shape,
// tag and padding. Complexity: O(1).
func NewPitches(shape Shape, tag Tag, pad Padding) Pitches {
	bshape := shape.BufferShape(pad)
	order := tag.order()

	extent := func(d dim) int {
		switch d {
		case dimB:
			return bshape.B
		case dimF:
			return bshape.F
		case dimY:
			return bshape.Y
		default:
			return bshape.X
		}
	}

	var stride [4]int
	acc := 1
	for i := 3; i >= 0; i-- {
		stride[i] = acc
		acc *= extent(order[i])
	}

	lower := func(d dim) int {
		switch d {
		case dimB:
			return pad.LowerB
		case dimF:
			return pad.LowerF
		case dimY:
			return pad.LowerY
		default:
			return pad.LowerX
		}
	}
	base := 0
	for i, d := range order {
		base += lower(d) * stride[i]
	}

	return Pitches{order: order, stride: stride, base: base, bshape: bshape}
}

// Offset returns the linear element offset of logical index (b,f,y,x)
// within the physical buffer, or ErrOutOfRange if any index is negative.
// Indices at or past the logical extent are not checked.
func (p Pitches) Offset(b, f, y, x int) (int, error) {
	idx := map[dim]int{dimB: b, dimF: f, dimY: y, dimX: x}
	off := p.base
	for i, d := range p.order {
		v := idx[d]
		if v < 0 {
			return 0, ErrOutOfRange
		}
		off += v * p.stride[i]
	}
	return off, nil
}

// AlignRowPitch rounds a row's element width up to `align` elements, the
// way Pass 11 aligns total row width to meet device-required alignment
// (e.g. 16 elements for bfyx convolution inputs).
func AlignRowPitch(width, align int) int {
	if align <= 1 {
		return width
	}
	rem := width % align
	if rem == 0 {
		return width
	}
	return width + (align - rem)
}
