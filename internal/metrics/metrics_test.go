package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	assert.NotNil(t, c.itemsAssigned)
	assert.NotNil(t, c.activeWorkers)

	// registering twice on the same registry must fail
	assert.Panics(t, func() { NewCollector(reg) })
}

func TestCounters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordAssigned("growth")
	c.RecordAssigned("growth")
	c.RecordAssigned("multipole_pk")
	c.RecordPersisted("growth", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.itemsAssigned.WithLabelValues("growth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsAssigned.WithLabelValues("multipole_pk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsPersisted.WithLabelValues("growth")))
}

func TestResolverStatistics(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordMissing("loop_integral", 12)
	c.RecordMissing("loop_integral", 3)
	c.RecordReconciled("loop_integral", 4)
	c.RecordReconciled("loop_integral", 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.missing.WithLabelValues("loop_integral")), "gauge keeps the latest size")
	assert.Equal(t, 6.0, testutil.ToFloat64(c.reconciled.WithLabelValues("loop_integral")))
}

func TestPhaseAndWorkers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetActiveWorkers(4)
	c.RecordPhase("one_loop_pk", 2*time.Second)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.activeWorkers))

	expected := `
# HELP lsseft_phases_total Completed scatter/gather phases
# TYPE lsseft_phases_total counter
lsseft_phases_total{kind="one_loop_pk"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "lsseft_phases_total"))
}
