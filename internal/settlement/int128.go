package settlement

import "math/bits"

// Signed 128-bit arithmetic for netting accumulators.
//
// A single trade's payment is price (int64) times quantity (uint64),
// which already overflows int64; a netting cycle sums many of them.
// Accumulation is therefore done in two's-complement 128-bit values
// and only clamped to int64 at emission.
//
// Representation: hi carries the sign bit, (hi, lo) is the two's
// complement value hi·2^64 + lo.
type int128 struct {
	hi uint64
	lo uint64
}

// int128From64 sign-extends an int64.
func int128From64(v int64) int128 {
	return int128{hi: uint64(v >> 63), lo: uint64(v)}
}

// int128FromU64 widens a uint64 (always non-negative).
func int128FromU64(v uint64) int128 {
	return int128{lo: v}
}

// add returns a + b with wraparound on 128-bit overflow. A single
// int64×uint64 product always fits in 128 bits; an accumulated sum
// wraps only once its magnitude passes 2^127.
func (a int128) add(b int128) int128 {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	hi, _ := bits.Add64(a.hi, b.hi, carry)
	return int128{hi: hi, lo: lo}
}

// sub returns a - b.
func (a int128) sub(b int128) int128 {
	lo, borrow := bits.Sub64(a.lo, b.lo, 0)
	hi, _ := bits.Sub64(a.hi, b.hi, borrow)
	return int128{hi: hi, lo: lo}
}

// neg returns -a.
func (a int128) neg() int128 {
	lo, carry := bits.Add64(^a.lo, 1, 0)
	hi, _ := bits.Add64(^a.hi, 0, carry)
	return int128{hi: hi, lo: lo}
}

// mulI64U64 returns price × quantity as a full 128-bit product.
func mulI64U64(price int64, quantity uint64) int128 {
	neg := price < 0
	mag := uint64(price)
	if neg {
		mag = uint64(-price) // int64 min negates to itself; magnitude is still correct bits
	}
	hi, lo := bits.Mul64(mag, quantity)
	p := int128{hi: hi, lo: lo}
	if neg {
		return p.neg()
	}
	return p
}

// isZero reports whether a == 0.
func (a int128) isZero() bool {
	return a.hi == 0 && a.lo == 0
}

// isNeg reports whether a < 0.
func (a int128) isNeg() bool {
	return a.hi>>63 == 1
}

// abs returns |a| as unsigned 128-bit magnitude words.
func (a int128) abs() (hi, lo uint64) {
	if a.isNeg() {
		n := a.neg()
		return n.hi, n.lo
	}
	return a.hi, a.lo
}

// satInt64 clamps a into the int64 range.
func (a int128) satInt64() int64 {
	if a.isNeg() {
		// Representable iff hi is all ones and lo's sign bit is set.
		if a.hi == ^uint64(0) && a.lo>>63 == 1 {
			return int64(a.lo)
		}
		return -1 << 63 // math.MinInt64
	}
	if a.hi == 0 && a.lo>>63 == 0 {
		return int64(a.lo)
	}
	return 1<<63 - 1 // math.MaxInt64
}

// satUint64 clamps a non-negative value into uint64; callers guarantee
// a >= 0 (net quantities are emitted by sign-split).
func (a int128) satUint64() uint64 {
	if a.hi != 0 {
		return ^uint64(0)
	}
	return a.lo
}

// mulDivTrunc computes trunc(p·m / q) where the 128-bit product p·m is
// divided before any narrowing. q must be non-zero and m <= q, which
// bounds the quotient magnitude by |p| and keeps the 128÷64 divide from
// overflowing.
func mulDivTrunc(p int64, m, q uint64) int64 {
	neg := p < 0
	mag := uint64(p)
	if neg {
		mag = uint64(-p)
	}
	hi, lo := bits.Mul64(mag, m)
	quo, _ := bits.Div64(hi, lo, q)
	if neg {
		return -int64(quo)
	}
	return int64(quo)
}
