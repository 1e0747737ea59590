package gf256

import (
	"fmt"

	"github.com/ssd-technologies/myst/internal/mysterr"
)

// Codec encodes and decodes one file's worth of shards for a fixed
// (DataShards, ParityShards) pair.
type Codec struct {
	DataShards   int
	ParityShards int
}

// NewCodec validates the shard counts and returns a Codec.
func NewCodec(data, parity int) (*Codec, error) {
	if data < 1 {
		return nil, fmt.Errorf("gf256: data shards must be >= 1, got %d", data)
	}
	if parity < 0 {
		return nil, fmt.Errorf("gf256: parity shards must be >= 0, got %d", parity)
	}
	if data+parity > 255 {
		return nil, fmt.Errorf("gf256: data+parity must be <= 255, got %d", data+parity)
	}
	return &Codec{DataShards: data, ParityShards: parity}, nil
}

// generatorRow returns the coefficient row used to compute parity shard p
// from all D data shards.
func (c *Codec) generatorRow(p int) []byte {
	row := make([]byte, c.DataShards)
	for i := 0; i < c.DataShards; i++ {
		row[i] = coef(p, i)
	}
	return row
}

// Encode splits buf into DataShards equal-length (zero-padded) shards and
// appends ParityShards parity shards computed from the exact generator in
// spec.md §4.1. Returns the full D+P shard list and the common shard size.
func (c *Codec) Encode(buf []byte) (shards [][]byte, shardSize int, err error) {
	shardSize = (len(buf) + c.DataShards - 1) / c.DataShards
	if shardSize == 0 {
		shardSize = 1 // a zero-length file still gets one empty byte of shard padding
	}

	shards = make([][]byte, c.DataShards+c.ParityShards)
	for i := 0; i < c.DataShards; i++ {
		start := i * shardSize
		end := start + shardSize
		shard := make([]byte, shardSize)
		if start < len(buf) {
			n := end
			if n > len(buf) {
				n = len(buf)
			}
			copy(shard, buf[start:n])
		}
		shards[i] = shard
	}

	for p := 0; p < c.ParityShards; p++ {
		row := c.generatorRow(p)
		parity := make([]byte, shardSize)
		for i := 0; i < c.DataShards; i++ {
			coefficient := row[i]
			if coefficient == 0 {
				continue
			}
			data := shards[i]
			for j := 0; j < shardSize; j++ {
				parity[j] ^= Mul(data[j], coefficient)
			}
		}
		shards[c.DataShards+p] = parity
	}

	return shards, shardSize, nil
}

// Decode reconstructs the original D*shardSize buffer from a sparse shard
// list (nil entries are missing/untrusted). Trailing zero padding from the
// last data shard is NOT stripped; the caller trims it (the download
// pipeline cuts the master ciphertext back to the manifest's original size).
func (c *Codec) Decode(shards [][]byte, shardSize int) ([]byte, error) {
	total := c.DataShards + c.ParityShards
	if len(shards) != total {
		return nil, fmt.Errorf("gf256: expected %d shards, got %d", total, len(shards))
	}

	allDataPresent := true
	have := 0
	for i := 0; i < total; i++ {
		if shards[i] != nil {
			have++
			if i < c.DataShards {
				continue
			}
		}
		if i < c.DataShards && shards[i] == nil {
			allDataPresent = false
		}
	}
	if allDataPresent {
		out := make([]byte, 0, c.DataShards*shardSize)
		for i := 0; i < c.DataShards; i++ {
			out = append(out, shards[i]...)
		}
		return out, nil
	}

	if have < c.DataShards {
		return nil, mysterr.InsufficientShards(have, c.DataShards)
	}

	recovered, err := c.reconstructData(shards, shardSize)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, c.DataShards*shardSize)
	for i := 0; i < c.DataShards; i++ {
		out = append(out, recovered[i]...)
	}
	return out, nil
}

// ReconstructAll computes every missing shard (data or parity) and returns a
// new full D+P slice, parity shards included; the input slice is not
// modified.
func (c *Codec) ReconstructAll(shards [][]byte, shardSize int) ([][]byte, error) {
	total := c.DataShards + c.ParityShards
	data, err := c.reconstructData(shards, shardSize)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, total)
	copy(out, data)
	for p := 0; p < c.ParityShards; p++ {
		idx := c.DataShards + p
		if shards[idx] != nil {
			out[idx] = shards[idx]
			continue
		}
		row := c.generatorRow(p)
		parity := make([]byte, shardSize)
		for i := 0; i < c.DataShards; i++ {
			coefficient := row[i]
			if coefficient == 0 {
				continue
			}
			for j := 0; j < shardSize; j++ {
				parity[j] ^= Mul(data[i][j], coefficient)
			}
		}
		out[idx] = parity
	}
	return out, nil
}

// reconstructData solves the linear system defined by the generator matrix
// for the missing data shards, given any D available shards (data or
// parity). The full matrix A has D+P rows of D columns each: rows 0..D-1 are
// the identity (a data shard equals itself), rows D..D+P-1 are the parity
// generator rows. Selecting any D of those rows for which we have a shard
// value gives a square D x D matrix M; inverting M over GF(256) and applying
// it to the available shard values recovers every data shard.
func (c *Codec) reconstructData(shards [][]byte, shardSize int) ([][]byte, error) {
	total := c.DataShards + c.ParityShards

	var rows [][]byte   // selected generator rows
	var values [][]byte // corresponding shard bytes
	for i := 0; i < total && len(rows) < c.DataShards; i++ {
		if shards[i] == nil {
			continue
		}
		rows = append(rows, c.matrixRow(i))
		values = append(values, shards[i])
	}
	if len(rows) < c.DataShards {
		return nil, mysterr.InsufficientShards(len(rows), c.DataShards)
	}

	inv, err := invertMatrix(rows)
	if err != nil {
		return nil, fmt.Errorf("gf256: singular decode matrix: %w", err)
	}

	data := make([][]byte, c.DataShards)
	for i := range data {
		data[i] = make([]byte, shardSize)
	}
	for outRow := 0; outRow < c.DataShards; outRow++ {
		invRow := inv[outRow]
		out := data[outRow]
		for k := 0; k < c.DataShards; k++ {
			coefficient := invRow[k]
			if coefficient == 0 {
				continue
			}
			src := values[k]
			for j := 0; j < shardSize; j++ {
				out[j] ^= Mul(src[j], coefficient)
			}
		}
	}
	return data, nil
}

// matrixRow returns row i of the full (D+P) x D generator matrix: identity
// for i < D, the parity generator row for i >= D.
func (c *Codec) matrixRow(i int) []byte {
	if i < c.DataShards {
		row := make([]byte, c.DataShards)
		row[i] = 1
		return row
	}
	return c.generatorRow(i - c.DataShards)
}

// invertMatrix inverts a square matrix over GF(256) using Gauss-Jordan
// elimination with partial pivoting.
func invertMatrix(m [][]byte) ([][]byte, error) {
	n := len(m)
	aug := make([][]byte, n)
	for i := range aug {
		aug[i] = make([]byte, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for row := col; row < n; row++ {
			if aug[row][col] != 0 {
				pivot = row
				break
			}
		}
		if pivot == -1 {
			return nil, fmt.Errorf("matrix is singular at column %d", col)
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		inv := invByte(aug[col][col])
		for k := 0; k < 2*n; k++ {
			aug[col][k] = Mul(aug[col][k], inv)
		}

		for row := 0; row < n; row++ {
			if row == col || aug[row][col] == 0 {
				continue
			}
			factor := aug[row][col]
			for k := 0; k < 2*n; k++ {
				aug[row][k] ^= Mul(aug[col][k], factor)
			}
		}
	}

	result := make([][]byte, n)
	for i := range result {
		result[i] = append([]byte(nil), aug[i][n:]...)
	}
	return result, nil
}

// invByte returns the multiplicative inverse of a non-zero field element.
func invByte(a byte) byte {
	return Div(1, a)
}
