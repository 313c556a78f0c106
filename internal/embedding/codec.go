// Package embedding encodes face embedding vectors for storage and compares
// them for identity dedup.
//
// The on-disk layout is versioned so stored embeddings survive format changes:
// a two-byte magic, a version byte, a dtype tag, a little-endian uint16 vector
// length, then the little-endian float32 payload.
package embedding

import (
	"encoding/binary"
	"fmt"
	"math"

	"turnstile/internal/services"
)

const (
	magic0 = 'F'
	magic1 = 'V'

	// Version identifies the current encoding revision.
	Version = 1

	dtypeFloat32 = 1

	headerSize = 6

	// MaxLen bounds the encodable vector length (uint16 length field).
	MaxLen = math.MaxUint16
)

// Encode serializes a float32 vector into the versioned wire format.
// Vectors longer than MaxLen are truncated; face embeddings are far smaller.
func Encode(vec []float32) []byte {
	if len(vec) > MaxLen {
		vec = vec[:MaxLen]
	}
	out := make([]byte, headerSize+4*len(vec))
	out[0] = magic0
	out[1] = magic1
	out[2] = Version
	out[3] = dtypeFloat32
	binary.LittleEndian.PutUint16(out[4:6], uint16(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[headerSize+4*i:], math.Float32bits(v))
	}
	return out
}

// Decode parses a stored embedding, validating magic, version, dtype, and
// payload length. Corrupt input returns a services.ErrCorruptData error.
func Decode(data []byte) ([]float32, error) {
	if len(data) < headerSize {
		return nil, services.Wrap(services.ErrCorruptData, "embedding", "decode",
			fmt.Sprintf("short header: %d bytes", len(data)), nil)
	}
	if data[0] != magic0 || data[1] != magic1 {
		return nil, services.Wrap(services.ErrCorruptData, "embedding", "decode",
			fmt.Sprintf("bad magic %#x %#x", data[0], data[1]), nil)
	}
	if data[2] != Version {
		return nil, services.Wrap(services.ErrCorruptData, "embedding", "decode",
			fmt.Sprintf("unsupported version %d", data[2]), nil)
	}
	if data[3] != dtypeFloat32 {
		return nil, services.Wrap(services.ErrCorruptData, "embedding", "decode",
			fmt.Sprintf("unsupported dtype %d", data[3]), nil)
	}
	length := int(binary.LittleEndian.Uint16(data[4:6]))
	want := headerSize + 4*length
	if len(data) != want {
		return nil, services.Wrap(services.ErrCorruptData, "embedding", "decode",
			fmt.Sprintf("payload length %d, want %d", len(data), want), nil)
	}
	vec := make([]float32, length)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[headerSize+4*i:]))
	}
	return vec, nil
}

// Cosine computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical. Mismatched
// lengths and zero vectors yield 0 so callers can treat the pair as unrelated.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Similar reports whether two embeddings meet or exceed the similarity threshold.
func Similar(a, b []float32, threshold float64) bool {
	return Cosine(a, b) >= threshold
}

// Average computes the per-dimension mean of the vectors. Enrollment takes
// several shots of one face and stores the mean. Vectors whose length
// differs from the first are skipped; returns nil when nothing usable
// remains.
func Average(vectors [][]float32) []float32 {
	var sum []float64
	count := 0
	for _, vec := range vectors {
		if len(vec) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		if len(vec) != len(sum) {
			continue
		}
		for i, v := range vec {
			sum[i] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]float32, len(sum))
	for i, v := range sum {
		out[i] = float32(v / float64(count))
	}
	return out
}
