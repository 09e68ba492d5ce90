package metrics_test

import (
	"context"
	"expvar"
	"testing"

	"github.com/slushlabs/snowledger/business/sys/metrics"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func counter(t *testing.T, name string) int64 {
	t.Helper()

	v, ok := expvar.Get(name).(*expvar.Int)
	if !ok {
		t.Fatalf("\t%s\tShould have a registered %q counter.", failed, name)
	}

	return v.Value()
}

func TestAddDecisions(t *testing.T) {
	t.Log("Given the need to validate the decisions counter moves with the context.")
	{
		t.Log("\tTest 0:\tWhen incrementing through a metrics-carrying context.")
		{
			before := counter(t, "decisions")

			ctx := metrics.Set(context.Background())
			metrics.AddDecisions(ctx)

			if got := counter(t, "decisions"); got != before+1 {
				t.Logf("\t%s\tTest 0:\tgot: %d", failed, got)
				t.Logf("\t%s\tTest 0:\texp: %d", failed, before+1)
				t.Fatalf("\t%s\tTest 0:\tShould increment the decisions counter.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould increment the decisions counter.", success)
		}

		t.Log("\tTest 1:\tWhen the context carries no metrics.")
		{
			before := counter(t, "decisions")

			metrics.AddDecisions(context.Background())

			if got := counter(t, "decisions"); got != before {
				t.Fatalf("\t%s\tTest 1:\tShould leave the counter untouched, got %d exp %d.", failed, got, before)
			}
			t.Logf("\t%s\tTest 1:\tShould leave the counter untouched.", success)
		}
	}
}
