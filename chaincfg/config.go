// Package chaincfg holds the chain-wide constants and per-fork epoch table
// the state transition function is parameterised on.
//
package chaincfg

import "fmt"

// Config holds consensus-layer parameters shared across all forks plus the
// per-fork activation epochs used by process_slots' upgrade dispatch and by
// InvalidFork checks throughout the forks and state packages.
type Config struct {
	SecondsPerSlot              uint64
	SlotsPerEpoch               uint64
	SlotsPerHistoricalRoot      uint64
	MinGenesisTime              uint64
	EpochsForFinality           uint64
	EffectiveBalanceIncrement   uint64
	EjectionBalance             uint64
	MaxEffectiveBalance         uint64
	MaxEffectiveBalanceElectra  uint64
	MaxGossipClockDisparityMS   uint64
	GenesisSlot                 uint64

	AltairForkEpoch    uint64
	BellatrixForkEpoch uint64
	CapellaForkEpoch   uint64
	DenebForkEpoch     uint64
	ElectraForkEpoch   uint64
	FuluForkEpoch      uint64
}

// FarFutureEpoch is the sentinel "never" epoch used for fork activation
// fields that have not been scheduled yet.
const FarFutureEpoch = ^uint64(0)

// GenesisEpoch is epoch 0, spelled out at call sites that compare against
// it so the comparison reads as a boundary check rather than a bare zero.
const GenesisEpoch = uint64(0)

// EpochsPerEth1VotingPeriod is the cadence at which eth1_data_votes resets
// (ETH1_FOLLOW_DISTANCE-independent, fixed across mainnet and minimal).
const EpochsPerEth1VotingPeriod = 64

// Mainnet returns the standard Ethereum mainnet chain configuration.
func Mainnet() *Config {
	return &Config{
		SecondsPerSlot:             12,
		SlotsPerEpoch:              32,
		SlotsPerHistoricalRoot:     8192,
		MinGenesisTime:             1606824000,
		EpochsForFinality:          2,
		EffectiveBalanceIncrement:  1_000_000_000,
		EjectionBalance:            16_000_000_000,
		MaxEffectiveBalance:        32_000_000_000,
		MaxEffectiveBalanceElectra: 2048_000_000_000,
		MaxGossipClockDisparityMS:  500,
		GenesisSlot:                0,

		AltairForkEpoch:    74240,
		BellatrixForkEpoch: 144896,
		CapellaForkEpoch:   194048,
		DenebForkEpoch:     269568,
		ElectraForkEpoch:   364032,
		FuluForkEpoch:      FarFutureEpoch,
	}
}

// Minimal returns a small-parameter configuration suited to unit tests and
// spec-test vectors (short epochs, fast finality).
func Minimal() *Config {
	return &Config{
		SecondsPerSlot:             6,
		SlotsPerEpoch:              8,
		SlotsPerHistoricalRoot:     64,
		MinGenesisTime:             0,
		EpochsForFinality:          2,
		EffectiveBalanceIncrement:  1_000_000_000,
		EjectionBalance:            16_000_000_000,
		MaxEffectiveBalance:        32_000_000_000,
		MaxEffectiveBalanceElectra: 2048_000_000_000,
		MaxGossipClockDisparityMS:  500,
		GenesisSlot:                0,

		AltairForkEpoch:    0,
		BellatrixForkEpoch: 0,
		CapellaForkEpoch:   0,
		DenebForkEpoch:     0,
		ElectraForkEpoch:   0,
		FuluForkEpoch:      FarFutureEpoch,
	}
}

// Validate checks the config's internal constraints.
func (c *Config) Validate() error {
	if c.SecondsPerSlot == 0 {
		return fmt.Errorf("chaincfg: SecondsPerSlot must be > 0")
	}
	if c.SlotsPerEpoch == 0 {
		return fmt.Errorf("chaincfg: SlotsPerEpoch must be > 0")
	}
	if c.EpochsForFinality == 0 {
		return fmt.Errorf("chaincfg: EpochsForFinality must be > 0")
	}
	if c.AltairForkEpoch > c.BellatrixForkEpoch ||
		c.BellatrixForkEpoch > c.CapellaForkEpoch ||
		c.CapellaForkEpoch > c.DenebForkEpoch ||
		c.DenebForkEpoch > c.ElectraForkEpoch ||
		c.ElectraForkEpoch > c.FuluForkEpoch {
		return fmt.Errorf("chaincfg: fork epochs must be non-decreasing")
	}
	return nil
}

// EpochDuration returns the total duration of one epoch in seconds.
func (c *Config) EpochDuration() uint64 {
	return c.SecondsPerSlot * c.SlotsPerEpoch
}
