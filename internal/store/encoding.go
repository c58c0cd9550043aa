package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ayusman/handsign/internal/landmark"
)

// FeatureBlobLen is the size of an encoded feature vector.
const FeatureBlobLen = landmark.FeatureLen * 8

// EncodeFeatures encodes a feature vector as a BLOB of little-endian IEEE 754
// float64 values with no length prefix.
func EncodeFeatures(values []float64) []byte {
	b := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

// DecodeFeatures decodes a BLOB produced by EncodeFeatures. Any length other
// than FeatureBlobLen is rejected.
func DecodeFeatures(b []byte) ([]float64, error) {
	if len(b) != FeatureBlobLen {
		return nil, fmt.Errorf("store: invalid feature blob length %d, want %d", len(b), FeatureBlobLen)
	}
	values := make([]float64, landmark.FeatureLen)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return values, nil
}
