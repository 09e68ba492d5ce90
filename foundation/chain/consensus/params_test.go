package consensus_test

import (
	"errors"
	"testing"

	"github.com/slushlabs/snowledger/foundation/chain/consensus"
)

func TestParamsValidate(t *testing.T) {
	type table struct {
		name       string
		params     consensus.Params
		totalNodes int
		valid      bool
	}

	tt := []table{
		{
			name:       "reference configuration",
			params:     consensus.Params{SampleSize: 5, QuorumThreshold: 3, DecisionThreshold: 1, ConfidenceThreshold: 3},
			totalNodes: 10,
			valid:      true,
		},
		{
			name:       "zero sample size",
			params:     consensus.Params{SampleSize: 0, QuorumThreshold: 1, DecisionThreshold: 1, ConfidenceThreshold: 1},
			totalNodes: 10,
			valid:      false,
		},
		{
			name:       "sample exceeds peers",
			params:     consensus.Params{SampleSize: 10, QuorumThreshold: 6, DecisionThreshold: 1, ConfidenceThreshold: 1},
			totalNodes: 10,
			valid:      false,
		},
		{
			name:       "alpha exceeds sample",
			params:     consensus.Params{SampleSize: 5, QuorumThreshold: 6, DecisionThreshold: 1, ConfidenceThreshold: 1},
			totalNodes: 10,
			valid:      false,
		},
		{
			name:       "alpha not a majority",
			params:     consensus.Params{SampleSize: 4, QuorumThreshold: 2, DecisionThreshold: 1, ConfidenceThreshold: 1},
			totalNodes: 10,
			valid:      false,
		},
		{
			name:       "zero beta",
			params:     consensus.Params{SampleSize: 5, QuorumThreshold: 3, DecisionThreshold: 0, ConfidenceThreshold: 3},
			totalNodes: 10,
			valid:      false,
		},
	}

	t.Log("Given the need to reject quorum configurations without majority semantics.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen validating %s.", testID, tst.name)
			{
				f := func(t *testing.T) {
					err := tst.params.Validate(tst.totalNodes)

					if tst.valid {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould pass validation: %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould pass validation.", success, testID)
						return
					}

					if err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould fail validation.", failed, testID)
					}

					var qce *consensus.QuorumConfigError
					if !errors.As(err, &qce) {
						t.Fatalf("\t%s\tTest %d:\tShould fail with a quorum configuration error, got %v.", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould fail with a quorum configuration error.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
