// SPDX-License-Identifier: MIT

/*
Package bitint provides power-of-two helpers for sizing audio buffers.
Hardware buffer sizes are almost always powers of two, so requests from
configuration are rounded before they reach the platform.

All functions are allocation free and safe to call from the real-time
audio path.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Values <= 0
// return 1.
//
// Subtracting one before taking the bit length keeps exact powers of two
// unchanged: for 8 (1000b), 7 is 0111b, Len is 3 and 1<<3 is 8.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// ClampPowerOfTwo rounds size up to a power of two and clamps the result
// to [lo, hi]. lo and hi are expected to be powers of two themselves.
func ClampPowerOfTwo(size, lo, hi int) int {
	n := NextPowerOfTwo(size)
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
