// Package metrics exports the summary of a mirror run as Prometheus metrics
// in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tonimelisma/gdrive-mirror/internal/mirror"
)

const namespace = "gdrive_mirror"

// WriteTextfile writes the run summary to path. The file is replaced
// atomically so a collector never reads a half-written file. success is false
// when the run ended on a fatal error.
func WriteTextfile(path string, s *mirror.Summary, success bool) error {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"root_id": s.RootID}

	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(g)

		return g
	}

	items := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "items",
		Help:        "Non-folder items processed in the last run, by outcome.",
		ConstLabels: labels,
	}, []string{"outcome"})
	reg.MustRegister(items)

	items.WithLabelValues(mirror.OutcomeDownloaded.String()).Set(float64(s.Downloaded))
	items.WithLabelValues(mirror.OutcomeExported.String()).Set(float64(s.Exported))
	items.WithLabelValues(mirror.OutcomeSkipped.String()).Set(float64(s.Skipped))
	items.WithLabelValues(mirror.OutcomeFailed.String()).Set(float64(s.Failed))

	gauge("folders", "Folders created or refreshed in the last run.").Set(float64(s.Folders))
	gauge("bytes", "Bytes written in the last run.").Set(float64(s.Bytes))
	gauge("listing_retries", "Folder listing requests retried in the last run.").Set(float64(s.ListingRetries))
	gauge("abandoned_folders", "Folders given up after listing errors in the last run.").
		Set(float64(s.AbandonedFolders))
	gauge("duration_seconds", "Wall time of the last run.").Set(s.Duration.Seconds())
	gauge("last_run_timestamp_seconds", "Start time of the last run.").
		Set(float64(s.Started.UnixNano()) / 1e9)

	ok := gauge("success", "1 if the last run finished without a fatal error.")
	if success {
		ok.Set(1)
	}

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("metrics: writing textfile %s: %w", path, err)
	}

	return nil
}
