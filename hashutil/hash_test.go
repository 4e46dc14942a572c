package hashutil

import (
	"crypto/sha256"
	"testing"
)

func TestHashMatchesSha256Concat(t *testing.T) {
	var a, b [32]byte
	for i := range a {
		a[i] = byte(i)
		b[i] = byte(255 - i)
	}
	var concat [64]byte
	copy(concat[:32], a[:])
	copy(concat[32:], b[:])
	want := sha256.Sum256(concat[:])
	if got := Hash(a, b); got != want {
		t.Fatalf("Hash = %x, want %x", got, want)
	}
}

func TestZeroHashLaw(t *testing.T) {
	// zero_hash[d+1] == H(zero_hash[d] || zero_hash[d]) for all depths.
	for d := 0; d < MaxDepth; d++ {
		want := Hash(ZeroHash(d), ZeroHash(d))
		if got := ZeroHash(d + 1); got != want {
			t.Fatalf("ZeroHash(%d) violates the doubling law", d+1)
		}
	}
	if ZeroHash(0) != [32]byte{} {
		t.Fatalf("ZeroHash(0) must be the all-zero chunk")
	}
}

func TestZeroHashOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for depth beyond MaxDepth")
		}
	}()
	ZeroHash(MaxDepth + 1)
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {1000, 1024},
	}
	for _, tt := range tests {
		if got := NextPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDepthOf(t *testing.T) {
	tests := []struct{ limit, want int }{
		{1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {8192, 13},
	}
	for _, tt := range tests {
		if got := DepthOf(tt.limit); got != tt.want {
			t.Errorf("DepthOf(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}
