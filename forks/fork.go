// Package forks defines the closed, ordered set of consensus protocol
// upgrades the state transition function is aware of, the per-fork
// BeaconState field layout, and the fork-variant tagged unions used to
// pass "some beacon state of some fork" or "some signed block of
// some fork" across the STF boundary without a vtable.
package forks

import (
	"errors"
	"fmt"

	"github.com/beacon-stf/corestate/chaincfg"
)

// ErrInvalidFork is returned when an operation refers to a field or
// sub-step not present in the state's fork.
var ErrInvalidFork = errors.New("forks: field not present in this fork")

// ErrUnexpectedForkSeq is returned when upgrading across a skipped fork
// (upgrade_to_X called on a state not already at fork X-1).
var ErrUnexpectedForkSeq = errors.New("forks: upgrade applied out of sequence")

// Fork is a closed, totally ordered enumeration of protocol upgrades.
type Fork uint8

const (
	Phase0 Fork = iota
	Altair
	Bellatrix
	Capella
	Deneb
	Electra
	Fulu
)

func (f Fork) String() string {
	switch f {
	case Phase0:
		return "phase0"
	case Altair:
		return "altair"
	case Bellatrix:
		return "bellatrix"
	case Capella:
		return "capella"
	case Deneb:
		return "deneb"
	case Electra:
		return "electra"
	case Fulu:
		return "fulu"
	default:
		return fmt.Sprintf("fork(%d)", uint8(f))
	}
}

// Before reports whether f precedes other in the fork sequence.
func (f Fork) Before(other Fork) bool { return f < other }

// AtLeast reports whether f is at or after other in the fork sequence.
func (f Fork) AtLeast(other Fork) bool { return f >= other }

// AtEpoch returns the fork active at the given epoch, per cfg's fork-epoch
// table.
func AtEpoch(cfg *chaincfg.Config, epoch uint64) Fork {
	f := Phase0
	if epoch >= cfg.AltairForkEpoch {
		f = Altair
	}
	if epoch >= cfg.BellatrixForkEpoch {
		f = Bellatrix
	}
	if epoch >= cfg.CapellaForkEpoch {
		f = Capella
	}
	if epoch >= cfg.DenebForkEpoch {
		f = Deneb
	}
	if epoch >= cfg.ElectraForkEpoch {
		f = Electra
	}
	if epoch >= cfg.FuluForkEpoch {
		f = Fulu
	}
	return f
}

// EpochOf returns the activation epoch of f per cfg.
func EpochOf(cfg *chaincfg.Config, f Fork) uint64 {
	switch f {
	case Altair:
		return cfg.AltairForkEpoch
	case Bellatrix:
		return cfg.BellatrixForkEpoch
	case Capella:
		return cfg.CapellaForkEpoch
	case Deneb:
		return cfg.DenebForkEpoch
	case Electra:
		return cfg.ElectraForkEpoch
	case Fulu:
		return cfg.FuluForkEpoch
	default:
		return 0
	}
}

// Next returns the fork immediately after f, and false if f is already the
// newest known fork.
func Next(f Fork) (Fork, bool) {
	if f >= Fulu {
		return f, false
	}
	return f + 1, true
}
