package metrics

import (
	"sync"
	"time"
)

// Attribute keys shared by the OTel instruments.
const (
	AttrMethod = "method"
	AttrRoute  = "route"
	AttrStatus = "status"
)

// Recorder keeps in-memory counters and forwards to OTel instruments when configured.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	mu sync.Mutex

	requests     int
	feedCycles   int
	feedErrors   int
	filterPasses int
	lastFeedTook time.Duration

	otel *otelInstruments
}

func NewRecorder() *Recorder {
	return newRecorder(nil)
}

func newRecorder(otel *otelInstruments) *Recorder {
	return &Recorder{otel: otel}
}

// RecordHTTPRequest tracks one served request. route should be the matched route
// template, not the raw path, to keep cardinality bounded.
func (r *Recorder) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.requests++
	r.mu.Unlock()
	if r.otel != nil {
		r.otel.recordHTTPRequest(method, route, status, duration)
	}
}

// RecordFeedCycle tracks one snapshot load of the match feed.
func (r *Recorder) RecordFeedCycle(duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.feedCycles++
	if err != nil {
		r.feedErrors++
	}
	r.lastFeedTook = duration
	r.mu.Unlock()
	if r.otel != nil {
		r.otel.recordFeed(duration, err)
	}
}

// RecordFilterPass tracks one engine run and how many matches survived it.
func (r *Recorder) RecordFilterPass(visible int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.filterPasses++
	r.mu.Unlock()
	if r.otel != nil {
		r.otel.recordFilter(visible)
	}
}

type Snapshot struct {
	Requests     int
	FeedCycles   int
	FeedErrors   int
	FilterPasses int
	LastFeedTook time.Duration
}

func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Requests:     r.requests,
		FeedCycles:   r.feedCycles,
		FeedErrors:   r.feedErrors,
		FilterPasses: r.filterPasses,
		LastFeedTook: r.lastFeedTook,
	}
}
