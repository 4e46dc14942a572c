package metrics

import (
	"bytes"
	"strings"
	"testing"
)

func TestNoopSTFSinkDoesNotPanic(t *testing.T) {
	s := NoopSTFSink
	s.EpochTransitionSeconds().Observe(1.2)
	s.EpochTransitionStepSeconds("rewards_and_penalties").Observe(0.1)
	s.EpochTransitionCommitSeconds().Observe(0.01)
	s.ProcessBlockSeconds().Observe(0.2)
	s.ProcessBlockCommitSeconds().Observe(0.02)
	s.HashTreeRootSeconds("block").Observe(0.001)
	s.StateClonedCount(3)
	s.PreStateNodesPopulated("validators", "disk", true)
	s.PostStateNodesPopulated("balances", false)
	s.ValidatorsInQueue("activation", 5)
	s.AttestationsPerBlock(12)
	s.ProposerReward("sync", 42)
}

func TestPrometheusSinkWriteExposesSeries(t *testing.T) {
	sink := NewPrometheusSink()
	sink.EpochTransitionSeconds().Observe(0.05)
	sink.EpochTransitionStepSeconds("slashings").Observe(0.002)
	sink.HashTreeRootSeconds("state").Observe(0.01)
	sink.StateClonedCount(2)
	sink.PreStateNodesPopulated("validators", "cache", true)
	sink.PostStateNodesPopulated("validators", true)
	sink.ValidatorsInQueue("exit", 7)
	sink.AttestationsPerBlock(4)
	sink.ProposerReward("proposer_weight", 100)

	var buf bytes.Buffer
	if err := sink.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"epoch_transition_seconds",
		"epoch_transition_step_seconds",
		"hash_tree_root_seconds",
		"state_cloned_count",
		"pre_state_nodes_populated",
		"post_state_nodes_populated",
		"validators_in_queue",
		"attestations_per_block",
		"proposer_rewards",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing series %q:\n%s", want, out)
		}
	}
}
