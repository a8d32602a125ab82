package types

// RunStats aggregates per-stage counts for one pipeline run. Produced fresh
// each run and emitted once in the end-of-run summary; never persisted.
type RunStats struct {
	Collected  int // items delivered by all collectors, before any dedup
	Duplicates int // in-run duplicate identities suppressed at merge
	Fresh      int // items that survived the dedup store check
	Passed     int // items the relevance filter let through
	Dropped    int // items the relevance filter rejected
	Classified int // items that finished classification (model or fallback)
	Fallbacks  int // classifications produced by the fallback heuristic
	Notified   int // items included in the notification batch
	Committed  int // records written to the dedup store

	Stage    string   // last stage reached (DONE on success)
	Failures []string // stage-level failures absorbed or fatal
}

// Failed reports whether the run recorded any stage-level failure. A run
// can complete and commit while still being degraded; the completion signal
// must be non-zero either way.
func (s RunStats) Failed() bool {
	return len(s.Failures) > 0
}

// Fields flattens the stats into alternating key/value pairs for the
// structured run summary log line.
func (s RunStats) Fields() []any {
	return []any{
		"stage", s.Stage,
		"collected", s.Collected,
		"duplicates", s.Duplicates,
		"fresh", s.Fresh,
		"passed", s.Passed,
		"dropped", s.Dropped,
		"classified", s.Classified,
		"fallbacks", s.Fallbacks,
		"notified", s.Notified,
		"committed", s.Committed,
		"failures", len(s.Failures),
	}
}
