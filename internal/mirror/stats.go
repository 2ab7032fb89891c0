package mirror

import "time"

// Stats counts what a run did. The walk is single-goroutine, so plain
// counters suffice.
type Stats struct {
	Folders          int
	Downloaded       int
	Exported         int
	Skipped          int
	Failed           int
	Bytes            int64
	ListingRetries   int
	AbandonedFolders int
}

func (s *Stats) record(r Result) {
	switch r.Outcome {
	case OutcomeDownloaded:
		s.Downloaded++
	case OutcomeExported:
		s.Exported++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}

	s.Bytes += r.Bytes
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	RootID   string
	RootName string
	BasePath string
	Started  time.Time
	Duration time.Duration
	Stats
}
