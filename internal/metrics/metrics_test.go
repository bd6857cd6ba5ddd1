package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/robert-malhotra/virelay/errdefs"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "out_of_range", Outcome(errdefs.OutOfRange("get", 3, 2)))
	assert.Equal(t, "unknown", Outcome(errors.New("boom")))
}

func TestObserveRead(t *testing.T) {
	okBefore := testutil.ToFloat64(Reads.WithLabelValues(ComponentAnalysis, "ok"))
	nfBefore := testutil.ToFloat64(Reads.WithLabelValues(ComponentAnalysis, "not_found"))

	ObserveRead(ComponentAnalysis, time.Now(), nil)
	ObserveRead(ComponentAnalysis, time.Now(), errdefs.NotFound("get", "category", "cat"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(Reads.WithLabelValues(ComponentAnalysis, "ok")))
	assert.Equal(t, nfBefore+1, testutil.ToFloat64(Reads.WithLabelValues(ComponentAnalysis, "not_found")))
}
