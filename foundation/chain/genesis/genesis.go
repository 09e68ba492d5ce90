// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id"`        // An unique id for this running instance of the chain.
	TransPerBlock uint16            `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16            `json:"difficulty"`      // Number of leading 0's required when the POW admission gate is used.
	Balances      map[string]uint64 `json:"balances"`        // Coins issued to the founding accounts.

	// Consensus holds the sampling parameters every node runs with.
	Consensus struct {
		SampleSize          int `json:"sample_size"`          // k: peers sampled per round.
		QuorumThreshold     int `json:"quorum_threshold"`     // alpha: same-opinion count for a strong signal.
		DecisionThreshold   int `json:"decision_threshold"`   // beta1: consecutive agreements to exit snowflake.
		ConfidenceThreshold int `json:"confidence_threshold"` // beta2: rounds to exit snowball.
	} `json:"consensus"`
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
