// SPDX-License-Identifier: MIT
/*
Package bitint holds the power-of-two helpers used to size FFT buffers.

A conditioned block of any length is analysed with the smallest power-of-two
transform that holds it; the remainder of the transform input is zero padded:

	size := bitint.NextPowerOfTwo(512)  // 512
	size = bitint.NextPowerOfTwo(1000)  // 1024

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves (bits.Len(7) = 3, 1<<3 = 8) rather than
doubling (bits.Len(8) = 4, 1<<4 = 16).
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, or 1 for
// non-positive sizes.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. Powers of two
// have a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
