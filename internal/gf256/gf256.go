// Package gf256 implements GF(2^8) field arithmetic over the primitive
// polynomial 0x11D with primitive element alpha=2, and the Reed-Solomon
// erasure codec built on top of it.
//
// The codec is intentionally hand-rolled rather than built on a
// general-purpose Reed-Solomon library: the wire format is pinned to one
// exact Vandermonde-like generator, coef(p,i) = exp[((p+1)*(i+1)) mod 255],
// so independent implementations reconstruct identical parity bytes. See
// DESIGN.md for why github.com/klauspost/reedsolomon (a Cauchy-matrix
// implementation) cannot serve this component.
package gf256

// primitivePoly is 0x11D with the leading bit (0x100) implicit.
const primitivePoly = 0x1D

var (
	expTable [510]byte
	logTable [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		expTable[i] = byte(x)
		logTable[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= (primitivePoly | 0x100)
		}
	}
	for i := 255; i < 510; i++ {
		expTable[i] = expTable[i-255]
	}
}

// Exp returns alpha^i, treating i modulo 255 and handling negative i.
func Exp(i int) byte {
	i %= 255
	if i < 0 {
		i += 255
	}
	return expTable[i]
}

// Log returns the discrete log of a (base alpha). a must be non-zero.
func Log(a byte) int {
	return int(logTable[a])
}

// Mul multiplies two field elements.
func Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[int(logTable[a])+int(logTable[b])]
}

// Div divides a by b. b must be non-zero.
func Div(a, b byte) byte {
	if a == 0 {
		return 0
	}
	diff := int(logTable[a]) - int(logTable[b])
	if diff < 0 {
		diff += 255
	}
	return expTable[diff]
}

// coef computes the generator coefficient used to derive parity byte p from
// data byte i: exp[((p+1)*(i+1)) mod 255].
func coef(p, i int) byte {
	return expTable[((p+1)*(i+1))%255]
}
