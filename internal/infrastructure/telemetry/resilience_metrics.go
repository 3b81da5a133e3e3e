package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// ResilienceMetrics holds the instruments for admission, commit retries and
// the failure boundary. A nil *ResilienceMetrics records nothing.
type ResilienceMetrics struct {
	admissionDecisions *Counter
	admissionLatency   *Histogram
	commitAttempts     *Counter
	commitRetries      *Counter
	commitExhausted    *Counter
	commitDuration     *Histogram
	failures           *Counter
}

// NewResilienceMetrics registers the instruments on meter.
func NewResilienceMetrics(meter metric.Meter) (*ResilienceMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   ResilienceMetrics
		err error
	)
	if m.admissionDecisions, err = NewCounter(meter, "admission_decisions_total",
		"Admission decisions by feature, tier and outcome", "{decision}"); err != nil {
		return nil, err
	}
	if m.admissionLatency, err = NewHistogram(meter, HistogramOpts{
		Name:        "admission_store_duration_seconds",
		Description: "Window store acquire latency",
		Unit:        "s",
		Boundaries:  SmallDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.commitAttempts, err = NewCounter(meter, "commit_attempts_total",
		"Transaction commit attempts by outcome", "{attempt}"); err != nil {
		return nil, err
	}
	if m.commitRetries, err = NewCounter(meter, "commit_retries_total",
		"Commit attempts that were retried after a transient failure", "{retry}"); err != nil {
		return nil, err
	}
	if m.commitExhausted, err = NewCounter(meter, "commit_exhausted_total",
		"Commits that ran out of attempts", "{commit}"); err != nil {
		return nil, err
	}
	if m.commitDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "commit_duration_seconds",
		Description: "Wall time of a resilient commit including backoff",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.failures, err = NewCounter(meter, "request_failures_total",
		"Requests converted to a safe response by the failure boundary", "{request}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordAdmission counts one admission decision.
func (m *ResilienceMetrics) RecordAdmission(ctx context.Context, feature, tier string, allowed bool, latency time.Duration) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.admissionDecisions.Inc(ctx, AttrFeature.String(feature), AttrTier.String(tier), AttrOutcome.String(outcome))
	m.admissionLatency.RecordDuration(ctx, latency)
}

// RecordCommitAttempt counts one attempt; outcome is "success", "transient" or "permanent".
func (m *ResilienceMetrics) RecordCommitAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.commitAttempts.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordCommitRetry counts a retry scheduled after a transient failure.
func (m *ResilienceMetrics) RecordCommitRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.commitRetries.Inc(ctx)
}

// RecordCommit records a finished commit.
func (m *ResilienceMetrics) RecordCommit(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == "exhausted" {
		m.commitExhausted.Inc(ctx)
	}
	m.commitDuration.RecordDuration(ctx, elapsed, AttrOutcome.String(outcome))
}

// RecordFailure counts a request handled by the failure boundary.
func (m *ResilienceMetrics) RecordFailure(ctx context.Context, classification, route string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrClassification.String(classification)}
	if route != "" {
		attrs = append(attrs, AttrHTTPRoute.String(route))
	}
	m.failures.Inc(ctx, attrs...)
}
