package settlement

import (
	"encoding/binary"
	"testing"
)

func TestFnv1aKnownVectors(t *testing.T) {
	// Reference vectors for 64-bit FNV-1a.
	tests := []struct {
		name string
		data []byte
		want uint64
	}{
		{"empty", nil, 0xcbf29ce484222325},
		{"a", []byte("a"), 0xaf63dc4c8601ec8c},
		{"foobar", []byte("foobar"), 0x85944171f73967e8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fnv1a(tt.data); got != tt.want {
				t.Errorf("fnv1a(%q) = %#x, want %#x", tt.data, got, tt.want)
			}
		})
	}
}

func TestFnv1aPairMatchesManualFraming(t *testing.T) {
	var data [16]byte
	binary.LittleEndian.PutUint64(data[0:8], 0xDEADBEEF)
	binary.LittleEndian.PutUint64(data[8:16], 0x12345678)
	if got, want := fnv1aPair(0xDEADBEEF, 0x12345678), fnv1a(data[:]); got != want {
		t.Errorf("fnv1aPair = %#x, want %#x", got, want)
	}
}

func TestFnv1aConstants(t *testing.T) {
	if fnvOffsetBasis != 0xcbf29ce484222325 {
		t.Errorf("offset basis = %#x", fnvOffsetBasis)
	}
	if fnvPrime != 0x100000001b3 {
		t.Errorf("prime = %#x", fnvPrime)
	}
}
