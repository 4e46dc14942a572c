// stf.go is the Prometheus-backed sink the state transition function
// reports through. The in-process Counter/Gauge/Histogram primitives in
// this package intentionally stay minimal; the vector-valued series the
// transition pipeline needs (per-step timings, hit/miss gauges) come from
// client_golang rather than hand-rolled percentile math.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// STFSink is the metrics surface the state transition function emits to,
// covering every series the transition pipeline emits.
type STFSink interface {
	EpochTransitionSeconds() prometheus.Observer
	EpochTransitionStepSeconds(step string) prometheus.Observer
	EpochTransitionCommitSeconds() prometheus.Observer
	ProcessBlockSeconds() prometheus.Observer
	ProcessBlockCommitSeconds() prometheus.Observer
	HashTreeRootSeconds(source string) prometheus.Observer
	StateClonedCount(clones int)
	PreStateNodesPopulated(kind, source string, hit bool)
	PostStateNodesPopulated(kind string, hit bool)
	ValidatorsInQueue(queue string, n int)
	AttestationsPerBlock(n int)
	ProposerReward(kind string, amount uint64)
}

// noopSink implements STFSink with no-ops, the process-wide default so
// metrics are a strict opt-in.
type noopSink struct{}

// NoopSTFSink is the default STFSink: safe to call from any goroutine,
// does no work.
var NoopSTFSink STFSink = noopSink{}

func (noopSink) EpochTransitionSeconds() prometheus.Observer          { return discardObserver{} }
func (noopSink) EpochTransitionStepSeconds(string) prometheus.Observer { return discardObserver{} }
func (noopSink) EpochTransitionCommitSeconds() prometheus.Observer    { return discardObserver{} }
func (noopSink) ProcessBlockSeconds() prometheus.Observer             { return discardObserver{} }
func (noopSink) ProcessBlockCommitSeconds() prometheus.Observer       { return discardObserver{} }
func (noopSink) HashTreeRootSeconds(string) prometheus.Observer       { return discardObserver{} }
func (noopSink) StateClonedCount(int)                                 {}
func (noopSink) PreStateNodesPopulated(string, string, bool)           {}
func (noopSink) PostStateNodesPopulated(string, bool)                  {}
func (noopSink) ValidatorsInQueue(string, int)                         {}
func (noopSink) AttestationsPerBlock(int)                              {}
func (noopSink) ProposerReward(string, uint64)                         {}

type discardObserver struct{}

func (discardObserver) Observe(float64) {}

// PrometheusSink is the real STFSink implementation, backed by a private
// prometheus.Registry so multiple CachedBeaconState lineages in the same
// process don't collide on metric registration.
type PrometheusSink struct {
	registry *prometheus.Registry

	epochTransitionSeconds       prometheus.Histogram
	epochTransitionStepSeconds   *prometheus.HistogramVec
	epochTransitionCommitSeconds prometheus.Histogram
	processBlockSeconds           prometheus.Histogram
	processBlockCommitSeconds     prometheus.Histogram
	hashTreeRootSeconds           *prometheus.HistogramVec
	stateClonedCount              prometheus.Histogram
	preStateNodesPopulated        *prometheus.GaugeVec
	postStateNodesPopulated       *prometheus.GaugeVec
	validatorsInQueue             *prometheus.GaugeVec
	attestationsPerBlock          prometheus.Histogram
	proposerRewards               *prometheus.GaugeVec
}

// NewPrometheusSink builds a PrometheusSink with its own registry.
func NewPrometheusSink() *PrometheusSink {
	reg := prometheus.NewRegistry()
	s := &PrometheusSink{
		registry: reg,
		epochTransitionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "epoch_transition_seconds",
			Help: "Wall time spent in process_epoch.",
		}),
		epochTransitionStepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "epoch_transition_step_seconds",
			Help: "Wall time spent in each process_epoch sub-step.",
		}, []string{"step"}),
		epochTransitionCommitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "epoch_transition_commit_seconds",
			Help: "Wall time spent committing dirty PMT sub-trees after an epoch transition.",
		}),
		processBlockSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "process_block_seconds",
			Help: "Wall time spent in process_block.",
		}),
		processBlockCommitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "process_block_commit_seconds",
			Help: "Wall time spent committing dirty PMT sub-trees after block processing.",
		}),
		hashTreeRootSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "hash_tree_root_seconds",
			Help: "Wall time spent computing a hash tree root, by calling source.",
		}, []string{"source"}),
		stateClonedCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "state_cloned_count",
			Help: "Distribution of the number of times a cached state was cloned.",
		}),
		preStateNodesPopulated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pre_state_nodes_populated",
			Help: "Whether pre-state balances/validators PMT leaves were already materialised.",
		}, []string{"kind", "source", "hit"}),
		postStateNodesPopulated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "post_state_nodes_populated",
			Help: "Whether post-state balances/validators PMT leaves are materialised.",
		}, []string{"kind", "hit"}),
		validatorsInQueue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validators_in_queue",
			Help: "Validators currently in the activation or exit queue.",
		}, []string{"queue"}),
		attestationsPerBlock: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "attestations_per_block",
			Help: "Number of attestations included per processed block.",
		}),
		proposerRewards: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proposer_rewards",
			Help: "Most recent proposer reward, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		s.epochTransitionSeconds, s.epochTransitionStepSeconds, s.epochTransitionCommitSeconds,
		s.processBlockSeconds, s.processBlockCommitSeconds, s.hashTreeRootSeconds,
		s.stateClonedCount, s.preStateNodesPopulated, s.postStateNodesPopulated,
		s.validatorsInQueue, s.attestationsPerBlock, s.proposerRewards,
	)
	return s
}

func (s *PrometheusSink) EpochTransitionSeconds() prometheus.Observer { return s.epochTransitionSeconds }
func (s *PrometheusSink) EpochTransitionStepSeconds(step string) prometheus.Observer {
	return s.epochTransitionStepSeconds.WithLabelValues(step)
}
func (s *PrometheusSink) EpochTransitionCommitSeconds() prometheus.Observer {
	return s.epochTransitionCommitSeconds
}
func (s *PrometheusSink) ProcessBlockSeconds() prometheus.Observer { return s.processBlockSeconds }
func (s *PrometheusSink) ProcessBlockCommitSeconds() prometheus.Observer {
	return s.processBlockCommitSeconds
}
func (s *PrometheusSink) HashTreeRootSeconds(source string) prometheus.Observer {
	return s.hashTreeRootSeconds.WithLabelValues(source)
}
func (s *PrometheusSink) StateClonedCount(clones int) { s.stateClonedCount.Observe(float64(clones)) }
func (s *PrometheusSink) PreStateNodesPopulated(kind, source string, hit bool) {
	s.preStateNodesPopulated.WithLabelValues(kind, source, hitLabel(hit)).Set(1)
}
func (s *PrometheusSink) PostStateNodesPopulated(kind string, hit bool) {
	s.postStateNodesPopulated.WithLabelValues(kind, hitLabel(hit)).Set(1)
}
func (s *PrometheusSink) ValidatorsInQueue(queue string, n int) {
	s.validatorsInQueue.WithLabelValues(queue).Set(float64(n))
}
func (s *PrometheusSink) AttestationsPerBlock(n int) { s.attestationsPerBlock.Observe(float64(n)) }
func (s *PrometheusSink) ProposerReward(kind string, amount uint64) {
	s.proposerRewards.WithLabelValues(kind).Set(float64(amount))
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// Write renders every registered series in the Prometheus text
// exposition format.
func (s *PrometheusSink) Write(w io.Writer) error {
	families, err := s.registry.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode: %w", err)
		}
	}
	return nil
}
