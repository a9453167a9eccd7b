// Package util collects small byte/integer helpers shared by the rest of
// the kernel, in the spirit of biscuit's own util package.
package util

/// Roundup rounds n up to the next multiple of sz.
func Roundup(n, sz int) int {
	return Rounddown(n+sz-1, sz)
}

/// Rounddown rounds n down to a multiple of sz.
func Rounddown(n, sz int) int {
	return n - n%sz
}

/// Readn decodes an n-byte little-endian integer from src starting at off.
func Readn(src []uint8, n, off int) int {
	ret := 0
	for i := 0; i < n; i++ {
		ret |= int(src[off+i]) << (8 * uint(i))
	}
	return ret
}

/// Writen encodes the low n bytes of val into dst at off, little-endian.
func Writen(dst []uint8, n, off, val int) {
	for i := 0; i < n; i++ {
		dst[off+i] = uint8(val >> (8 * uint(i)))
	}
}

/// Min returns the smaller of a and b.
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

/// Max returns the larger of a and b.
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
