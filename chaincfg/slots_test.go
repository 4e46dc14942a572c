package chaincfg

import (
	"errors"
	"testing"
	"time"
)

func TestEpochSlotMath(t *testing.T) {
	cfg := Mainnet()
	tests := []struct {
		slot  uint64
		epoch uint64
	}{
		{0, 0},
		{31, 0},
		{32, 1},
		{33, 1},
		{8192, 256},
	}
	for _, tt := range tests {
		if got := cfg.EpochAtSlot(tt.slot); got != tt.epoch {
			t.Errorf("EpochAtSlot(%d) = %d, want %d", tt.slot, got, tt.epoch)
		}
	}
	if got := cfg.StartSlotAtEpoch(256); got != 8192 {
		t.Errorf("StartSlotAtEpoch(256) = %d, want 8192", got)
	}
	// Round-tripping an epoch through its start slot is the identity.
	for _, e := range []uint64{0, 1, 74240, 364032} {
		if got := cfg.EpochAtSlot(cfg.StartSlotAtEpoch(e)); got != e {
			t.Errorf("EpochAtSlot(StartSlotAtEpoch(%d)) = %d", e, got)
		}
	}
}

func TestTimeAtSlot(t *testing.T) {
	cfg := Mainnet()
	genesis := uint64(1606824000)
	if got := cfg.TimeAtSlot(0, genesis); got != genesis {
		t.Fatalf("TimeAtSlot(0) = %d, want %d", got, genesis)
	}
	if got := cfg.TimeAtSlot(10, genesis); got != genesis+120 {
		t.Fatalf("TimeAtSlot(10) = %d, want %d", got, genesis+120)
	}
}

func TestCurrentSlot(t *testing.T) {
	cfg := Mainnet()
	genesis := uint64(1606824000)

	slot, err := cfg.CurrentSlot(genesis, time.Unix(int64(genesis)+12*100+5, 0))
	if err != nil {
		t.Fatalf("CurrentSlot: %v", err)
	}
	if slot != 100 {
		t.Fatalf("CurrentSlot = %d, want 100", slot)
	}

	if _, err := cfg.CurrentSlot(genesis, time.Unix(int64(genesis)-1, 0)); !errors.Is(err, ErrClockBeforeGenesis) {
		t.Fatalf("expected ErrClockBeforeGenesis, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	for _, cfg := range []*Config{Mainnet(), Minimal()} {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	}

	bad := Mainnet()
	bad.SecondsPerSlot = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero SecondsPerSlot")
	}

	bad = Mainnet()
	bad.CapellaForkEpoch = bad.BellatrixForkEpoch - 1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for decreasing fork epochs")
	}
}
