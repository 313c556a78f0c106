package embedding_test

import (
	"errors"
	"math"
	"testing"

	"turnstile/internal/embedding"
	"turnstile/internal/services"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75, 0, math.Pi}
	data := embedding.Encode(vec)

	decoded, err := embedding.Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("decoded length %d, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Fatalf("element %d = %v, want %v", i, decoded[i], vec[i])
		}
	}
}

func TestEncodeEmptyVector(t *testing.T) {
	data := embedding.Encode(nil)
	decoded, err := embedding.Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("expected empty vector, got %d elements", len(decoded))
	}
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	valid := embedding.Encode([]float32{1, 2, 3})

	cases := map[string][]byte{
		"short header": valid[:4],
		"bad magic": func() []byte {
			d := append([]byte(nil), valid...)
			d[0] = 'X'
			return d
		}(),
		"bad version": func() []byte {
			d := append([]byte(nil), valid...)
			d[2] = 99
			return d
		}(),
		"bad dtype": func() []byte {
			d := append([]byte(nil), valid...)
			d[3] = 7
			return d
		}(),
		"truncated payload": valid[:len(valid)-2],
		"trailing bytes":    append(append([]byte(nil), valid...), 0xFF),
	}

	for name, data := range cases {
		if _, err := embedding.Decode(data); err == nil {
			t.Errorf("%s: expected decode error", name)
		} else if !errors.Is(err, services.ErrCorruptData) {
			t.Errorf("%s: expected corrupt data marker, got %v", name, err)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	if sim := embedding.Cosine(a, b); math.Abs(sim-1) > 1e-9 {
		t.Fatalf("identical vectors similarity = %v, want 1", sim)
	}

	c := []float32{0, 1, 0}
	if sim := embedding.Cosine(a, c); math.Abs(sim) > 1e-9 {
		t.Fatalf("orthogonal vectors similarity = %v, want 0", sim)
	}

	d := []float32{-1, 0, 0}
	if sim := embedding.Cosine(a, d); math.Abs(sim+1) > 1e-9 {
		t.Fatalf("opposite vectors similarity = %v, want -1", sim)
	}
}

func TestCosineDegenerateInputs(t *testing.T) {
	if sim := embedding.Cosine([]float32{1, 2}, []float32{1, 2, 3}); sim != 0 {
		t.Fatalf("mismatched lengths similarity = %v, want 0", sim)
	}
	if sim := embedding.Cosine(nil, nil); sim != 0 {
		t.Fatalf("empty vectors similarity = %v, want 0", sim)
	}
	if sim := embedding.Cosine([]float32{0, 0}, []float32{1, 1}); sim != 0 {
		t.Fatalf("zero vector similarity = %v, want 0", sim)
	}
}

func TestSimilarThreshold(t *testing.T) {
	a := []float32{1, 1, 0}
	b := []float32{1, 0.9, 0}
	if !embedding.Similar(a, b, 0.7) {
		t.Fatal("expected nearly parallel vectors to pass 0.7 threshold")
	}
	c := []float32{0, 0, 1}
	if embedding.Similar(a, c, 0.7) {
		t.Fatal("expected orthogonal vectors to fail 0.7 threshold")
	}
}

func TestAverage(t *testing.T) {
	got := embedding.Average([][]float32{
		{1, 2, 3},
		{3, 4, 5},
	})
	want := []float32{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("average length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("average[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAverageSkipsMismatchedLengths(t *testing.T) {
	got := embedding.Average([][]float32{
		{2, 4},
		{1, 2, 3},
		{4, 6},
		nil,
	})
	want := []float32{3, 5}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("average = %v, want %v", got, want)
	}
	if embedding.Average(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}
