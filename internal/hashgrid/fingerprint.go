package hashgrid

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes index data (permutations, neighbor lists) so repeated
// runs can be compared cheaply.
func Fingerprint(data []int32) uint64 {
	d := xxhash.New()
	var buf [4 * 256]byte
	for len(data) > 0 {
		n := min(len(data), 256)
		for i, v := range data[:n] {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		}
		_, _ = d.Write(buf[:n*4])
		data = data[n:]
	}
	return d.Sum64()
}

// FingerprintFloat32 hashes the bit patterns of float data.
func FingerprintFloat32(data []float32) uint64 {
	d := xxhash.New()
	var buf [4 * 256]byte
	for len(data) > 0 {
		n := min(len(data), 256)
		for i, v := range data[:n] {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		_, _ = d.Write(buf[:n*4])
		data = data[n:]
	}
	return d.Sum64()
}
