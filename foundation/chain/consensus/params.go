package consensus

import (
	"fmt"

	"github.com/slushlabs/snowledger/foundation/chain/genesis"
)

// Default round caps for the two repeated-sampling phases. Exhausting a cap
// is not an error: the phase proceeds with its best-known preference.
const (
	defaultSnowflakeRounds = 5
	defaultSnowballRounds  = 10
)

// Params holds the sampling parameters every node runs the protocol with.
type Params struct {
	SampleSize          int `json:"sample_size"`          // k: peers sampled per query.
	QuorumThreshold     int `json:"quorum_threshold"`     // alpha: same-opinion count within a sample for a strong signal.
	DecisionThreshold   int `json:"decision_threshold"`   // beta1: consecutive agreements required to exit snowflake.
	ConfidenceThreshold int `json:"confidence_threshold"` // beta2: rounds required to exit snowball.
	SnowflakeRounds     int `json:"snowflake_rounds"`     // safety cap on snowflake rounds.
	SnowballRounds      int `json:"snowball_rounds"`      // safety cap on snowball rounds.
}

// NewParams constructs the consensus parameters from the genesis file,
// applying the default round caps.
func NewParams(gen genesis.Genesis) Params {
	return Params{
		SampleSize:          gen.Consensus.SampleSize,
		QuorumThreshold:     gen.Consensus.QuorumThreshold,
		DecisionThreshold:   gen.Consensus.DecisionThreshold,
		ConfidenceThreshold: gen.Consensus.ConfidenceThreshold,
		SnowflakeRounds:     defaultSnowflakeRounds,
		SnowballRounds:      defaultSnowballRounds,
	}
}

// QuorumConfigError indicates the parameters cannot provide majority
// semantics. This is fatal at configuration time, not recoverable mid-run.
type QuorumConfigError struct {
	Reason string
}

// Error implements the error interface.
func (qce *QuorumConfigError) Error() string {
	return fmt.Sprintf("quorum configuration invalid: %s", qce.Reason)
}

// Validate checks the parameters against the network size. The quorum
// threshold must exceed half the sample for a quorum to imply a majority.
func (p Params) Validate(totalNodes int) error {
	if p.SampleSize < 1 {
		return &QuorumConfigError{Reason: fmt.Sprintf("sample size k must be positive, got %d", p.SampleSize)}
	}

	if p.SampleSize > totalNodes-1 {
		return &QuorumConfigError{Reason: fmt.Sprintf("sample size k [%d] exceeds available peers [%d]", p.SampleSize, totalNodes-1)}
	}

	if p.QuorumThreshold > p.SampleSize {
		return &QuorumConfigError{Reason: fmt.Sprintf("alpha [%d] exceeds sample size k [%d]", p.QuorumThreshold, p.SampleSize)}
	}

	if p.QuorumThreshold*2 <= p.SampleSize {
		return &QuorumConfigError{Reason: fmt.Sprintf("alpha [%d] must exceed k/2 [%d] for majority semantics", p.QuorumThreshold, p.SampleSize/2)}
	}

	if p.DecisionThreshold < 1 || p.ConfidenceThreshold < 1 {
		return &QuorumConfigError{Reason: "beta thresholds must be positive"}
	}

	return nil
}

// roundCaps returns the effective caps, falling back to the defaults when
// the zero value is configured.
func (p Params) roundCaps() (snowflake int, snowball int) {
	snowflake = p.SnowflakeRounds
	if snowflake == 0 {
		snowflake = defaultSnowflakeRounds
	}

	snowball = p.SnowballRounds
	if snowball == 0 {
		snowball = defaultSnowballRounds
	}

	return snowflake, snowball
}
