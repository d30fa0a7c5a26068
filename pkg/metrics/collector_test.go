package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.AddSlices(3)
	c.AddSlices(0)
	c.AddFeatures(core.AxisRT, 2)
	c.AddFeatures(core.AxisDrift, 5)
	c.AddMSDec(OutcomeRaw)
	c.AddMSDec(OutcomeRaw)
	c.AddMatches(core.SourceTextDB, 1)
	c.ObserveStage(StageSpotting, 20*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.slices))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.features.WithLabelValues("rt")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.features.WithLabelValues("drift")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.msdec.WithLabelValues(OutcomeRaw)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.matches.WithLabelValues("textdb")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.stages))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.AddSlices(1)
	c.AddFeatures(core.AxisRT, 1)
	c.AddMSDec(OutcomeEmpty)
	c.AddMatches(core.SourceMSP, 1)
	c.ObserveStage(StageAnnotation, time.Second)
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteTextfile("unused"))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.AddSlices(7)

	path := filepath.Join(t.TempDir(), "lcimms.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lcimms_mass_slices_processed_total 7")
}
