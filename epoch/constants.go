// Package epoch implements the EpochTransitionCache and the
// process_epoch sub-steps that run at every epoch boundary.
package epoch

// Participation flag bit indices (phase0 data is reinterpreted into these
// three flags starting at Altair).
const (
	TimelySourceFlagIndex = 0
	TimelyTargetFlagIndex = 1
	TimelyHeadFlagIndex   = 2
)

// Flag weights and the shared denominator; TIMELY_TARGET carries the most
// weight because missing the correct target is what finality tracks.
const (
	TimelySourceWeight = 14
	TimelyTargetWeight = 26
	TimelyHeadWeight   = 14
	SyncRewardWeight   = 2
	ProposerWeight     = 8
	WeightDenominator  = 64
)

// FlagWeights indexes weight-by-flag for the three participation flags.
var FlagWeights = [3]uint64{TimelySourceWeight, TimelyTargetWeight, TimelyHeadWeight}

// Reward/penalty and churn constants from the consensus-spec preset.
const (
	BaseRewardFactor            = 64
	BaseRewardsPerEpoch         = 4
	HysteresisQuotient          = 4
	HysteresisDownwardMultiplier = 1
	HysteresisUpwardMultiplier   = 5
	ProposerRewardQuotient       = 8
	WhistleblowerRewardQuotient  = 512

	MinSlashingPenaltyQuotient          = 128
	MinSlashingPenaltyQuotientAltair    = 64
	MinSlashingPenaltyQuotientBellatrix = 32

	ProportionalSlashingMultiplier          = 1
	ProportionalSlashingMultiplierAltair    = 2
	ProportionalSlashingMultiplierBellatrix = 3

	InactivityPenaltyQuotient          = 1 << 26
	InactivityPenaltyQuotientAltair    = 3 << 24
	InactivityPenaltyQuotientBellatrix = 3 << 24 * 2

	MinPerEpochChurnLimit        = 4
	ChurnLimitQuotient           = 1 << 16
	MaxSeedLookahead             = 4
	MinEpochsToInactivityPenalty = 4
	MaxEffectiveBalanceElectraChurn = 128_000_000_000

	MinActivationBalance       = 32_000_000_000
	MaxPerEpochActivationExitChurnLimit = 256_000_000_000
)
