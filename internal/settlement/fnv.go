package settlement

import "encoding/binary"

// 64-bit FNV-1a. Margin, waterfall and replay all fingerprint through
// this one primitive; two independent implementations must agree on
// every byte, so the constants and the little-endian framing of every
// multi-byte integer are part of the wire contract.
const (
	fnvOffsetBasis uint64 = 0xcbf29ce484222325
	fnvPrime       uint64 = 0x100000001b3
)

// fnv1a hashes data with 64-bit FNV-1a.
func fnv1a(data []byte) uint64 {
	h := fnvOffsetBasis
	for _, b := range data {
		h ^= uint64(b)
		h *= fnvPrime
	}
	return h
}

// fnv1aPair hashes two little-endian u64 words. This 16-byte framing
// is shared by the margin requirement hash, the waterfall result hash,
// the replay result hash and the journal chain fold.
func fnv1aPair(a, b uint64) uint64 {
	var data [16]byte
	binary.LittleEndian.PutUint64(data[0:8], a)
	binary.LittleEndian.PutUint64(data[8:16], b)
	return fnv1a(data[:])
}
