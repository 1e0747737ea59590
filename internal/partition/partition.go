// Package partition implements the ceiling-chunk split/merge used to turn
// the (optionally compressed) master ciphertext into shards, and to glue
// recovered shards back together (spec.md §4.4).
package partition

// Split divides buf into n chunks using the ceiling-chunk algorithm:
// chunk = ceil(len/n), slice [i*chunk, min((i+1)*chunk, len)]. The last
// chunk may be shorter than the others. The pipeline uses Split only on the
// non-RS path; gf256.Codec.Encode cuts and zero-pads its own data shards.
func Split(buf []byte, n int) [][]byte {
	if n <= 0 {
		return nil
	}
	chunk := (len(buf) + n - 1) / n
	if chunk == 0 {
		chunk = 1
	}

	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * chunk
		end := start + chunk
		if start > len(buf) {
			start = len(buf)
		}
		if end > len(buf) {
			end = len(buf)
		}
		shard := make([]byte, end-start)
		copy(shard, buf[start:end])
		out[i] = shard
	}
	return out
}

// PadShards right-pads every shard with zero bytes up to size, so a short
// last shard from Split matches the common length S. Shards already of
// length size are returned as-is.
func PadShards(shards [][]byte, size int) [][]byte {
	out := make([][]byte, len(shards))
	for i, s := range shards {
		if len(s) == size {
			out[i] = s
			continue
		}
		padded := make([]byte, size)
		copy(padded, s)
		out[i] = padded
	}
	return out
}

// Merge concatenates shards in index order. The result's length is the sum
// of the shard lengths; for the non-RS path this must equal the original
// pre-split buffer length, and for the RS path it is D*S (the download
// pipeline trims the padding before master decryption).
func Merge(shards [][]byte) []byte {
	total := 0
	for _, s := range shards {
		total += len(s)
	}
	out := make([]byte, 0, total)
	for _, s := range shards {
		out = append(out, s...)
	}
	return out
}
