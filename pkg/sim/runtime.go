package sim

// runtimeRoutines implement the two-register arithmetic the lowering
// engine calls out for. Operands arrive as whole 64-bit values.
var runtimeRoutines = map[string]Native{
	"__sicc_mul64": func(_ *Machine, a []uint64) uint64 { return a[0] * a[1] },
	"__sicc_div64": func(_ *Machine, a []uint64) uint64 {
		if a[1] == 0 {
			return 0
		}
		return uint64(int64(a[0]) / int64(a[1]))
	},
	"__sicc_udiv64": func(_ *Machine, a []uint64) uint64 {
		if a[1] == 0 {
			return 0
		}
		return a[0] / a[1]
	},
	"__sicc_mod64": func(_ *Machine, a []uint64) uint64 {
		if a[1] == 0 {
			return 0
		}
		return uint64(int64(a[0]) % int64(a[1]))
	},
	"__sicc_umod64": func(_ *Machine, a []uint64) uint64 {
		if a[1] == 0 {
			return 0
		}
		return a[0] % a[1]
	},
	"__sicc_shl64":  func(_ *Machine, a []uint64) uint64 { return a[0] << (a[1] & 63) },
	"__sicc_shr64":  func(_ *Machine, a []uint64) uint64 { return uint64(int64(a[0]) >> (a[1] & 63)) },
	"__sicc_ushr64": func(_ *Machine, a []uint64) uint64 { return a[0] >> (a[1] & 63) },
}
