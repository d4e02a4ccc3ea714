package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// PrometheusRecorder implements Recorder on a private Prometheus registry.
// Because index builds are batch jobs, metrics are exported as a textfile
// for a node-exporter style collector rather than served over HTTP.
type PrometheusRecorder struct {
	registry *prom.Registry

	filesHashed   prom.Counter
	cacheHits     prom.Counter
	pagesRendered prom.Counter
	entriesDrop   prom.Counter
	duration      prom.Gauge
}

// NewPrometheusRecorder creates a recorder with all build metrics
// registered on a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{registry: prom.NewRegistry()}
	r.filesHashed = prom.NewCounter(prom.CounterOpts{
		Name: "archidx_files_hashed_total",
		Help: "Files whose checksums were recomputed this build.",
	})
	r.cacheHits = prom.NewCounter(prom.CounterOpts{
		Name: "archidx_checksum_cache_hits_total",
		Help: "Checksums served from the persisted cache.",
	})
	r.pagesRendered = prom.NewCounter(prom.CounterOpts{
		Name: "archidx_pages_rendered_total",
		Help: "Output pages written this build.",
	})
	r.entriesDrop = prom.NewCounter(prom.CounterOpts{
		Name: "archidx_entries_dropped_total",
		Help: "Document entries dropped because the file is absent on disk.",
	})
	r.duration = prom.NewGauge(prom.GaugeOpts{
		Name: "archidx_build_duration_seconds",
		Help: "Wall time of the last completed build.",
	})
	r.registry.MustRegister(r.filesHashed, r.cacheHits, r.pagesRendered, r.entriesDrop, r.duration)
	return r
}

func (r *PrometheusRecorder) FileHashed()   { r.filesHashed.Inc() }
func (r *PrometheusRecorder) CacheHit()     { r.cacheHits.Inc() }
func (r *PrometheusRecorder) PageRendered() { r.pagesRendered.Inc() }
func (r *PrometheusRecorder) EntryDropped() { r.entriesDrop.Inc() }

func (r *PrometheusRecorder) BuildDuration(d time.Duration) {
	r.duration.Set(d.Seconds())
}

// WriteTextfile dumps the registry in Prometheus text exposition format,
// written atomically so a collector never reads a partial file.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create metrics textfile: %w", err)
	}
	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, fam := range families {
		if err := enc.Encode(fam); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Clean(path)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit metrics textfile: %w", err)
	}
	return nil
}
