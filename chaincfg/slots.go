package chaincfg

import (
	"errors"
	"time"
)

// ErrClockBeforeGenesis is returned by CurrentSlot when now is earlier than
// genesis_time.
var ErrClockBeforeGenesis = errors.New("chaincfg: current time precedes genesis")

// EpochAtSlot implements compute_epoch_at_slot: slot / SLOTS_PER_EPOCH.
func (c *Config) EpochAtSlot(slot uint64) uint64 {
	return slot / c.SlotsPerEpoch
}

// StartSlotAtEpoch implements compute_start_slot_at_epoch: epoch * SLOTS_PER_EPOCH.
func (c *Config) StartSlotAtEpoch(epoch uint64) uint64 {
	return epoch * c.SlotsPerEpoch
}

// TimeAtSlot implements compute_time_at_slot: genesis_time + slot * SECONDS_PER_SLOT.
func (c *Config) TimeAtSlot(slot, genesisTime uint64) uint64 {
	return genesisTime + slot*c.SecondsPerSlot
}

// CurrentSlot implements get_current_slot, using the wall clock. Fails
// with ErrClockBeforeGenesis when now is before genesis_time.
func (c *Config) CurrentSlot(genesisTime uint64, now time.Time) (uint64, error) {
	nowSeconds := uint64(now.Unix())
	if nowSeconds < genesisTime {
		return 0, ErrClockBeforeGenesis
	}
	return c.GenesisSlot + (nowSeconds-genesisTime)/c.SecondsPerSlot, nil
}
