// Package metrics provides run statistics backed by a private Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/systemsomicslab/MsdialWorkbench-sub065/pkg/core"
)

// Stage names used for duration observations.
const (
	StageSpotting      = "spotting"
	StageDeconvolution = "deconvolution"
	StageAnnotation    = "annotation"
)

// MSDec outcomes.
const (
	OutcomeDeconvoluted = "deconvoluted"
	OutcomeRaw          = "raw"
	OutcomeEmpty        = "empty"
)

// Collector aggregates pipeline statistics.
// All methods are thread-safe and a nil *Collector is a no-op.
type Collector struct {
	registry *prometheus.Registry

	slices   prometheus.Counter
	features *prometheus.CounterVec
	msdec    *prometheus.CounterVec
	matches  *prometheus.CounterVec
	stages   *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		slices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lcimms",
			Name:      "mass_slices_processed_total",
			Help:      "Candidate masses (grid slices or targets) processed by peak spotting.",
		}),
		features: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lcimms",
			Name:      "features_detected_total",
			Help:      "Features kept after redundancy removal, by axis.",
		}, []string{"axis"}),
		msdec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lcimms",
			Name:      "msdec_results_total",
			Help:      "MS2 deconvolution results, by outcome.",
		}, []string{"outcome"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lcimms",
			Name:      "annotation_matches_total",
			Help:      "Representative matches assigned, by database.",
		}, []string{"database"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lcimms",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
	c.registry.MustRegister(
		c.slices, c.features, c.msdec, c.matches, c.stages,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// AddSlices counts processed candidate masses.
func (c *Collector) AddSlices(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.slices.Add(float64(n))
}

// AddFeatures counts detected features on one axis.
func (c *Collector) AddFeatures(axis core.Axis, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.features.WithLabelValues(axis.String()).Add(float64(n))
}

// AddMSDec counts one deconvolution result.
func (c *Collector) AddMSDec(outcome string) {
	if c == nil {
		return
	}
	c.msdec.WithLabelValues(outcome).Inc()
}

// AddMatches counts representative matches from one database.
func (c *Collector) AddMatches(src core.MatchSource, n int) {
	if c == nil || n <= 0 {
		return
	}
	name := "msp"
	if src == core.SourceTextDB {
		name = "textdb"
	}
	c.matches.WithLabelValues(name).Add(float64(n))
}

// ObserveStage records the duration of one stage.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
