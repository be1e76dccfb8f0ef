package vreg

// Frame hands out spill and temporary slots above the locals laid out by
// the front end. Slots are released in bulk back to a mark.
type Frame struct {
	used int64
	max  int64
}

func NewFrame(base int64) *Frame {
	return &Frame{used: base, max: base}
}

func (f *Frame) Alloc(size, align int64) *Slot {
	if align > 1 {
		f.used = (f.used + align - 1) / align * align
	}
	s := &Slot{Off: f.used, Size: size}
	f.used += size
	f.max = max(f.max, f.used)
	return s
}

func (f *Frame) Mark() int64 { return f.used }

func (f *Frame) Release(mark int64) { f.used = mark }

// Size is the high-water mark of the frame.
func (f *Frame) Size() int64 { return f.max }
