package worker

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"bundleeval/internal/jobs"
	"bundleeval/internal/logging"
	"bundleeval/internal/objectstore"
	"bundleeval/internal/reqcache"
	"bundleeval/internal/results"
	"bundleeval/internal/services"
	"bundleeval/internal/services/identify"
)

// process turns one job into a record. A nil record with a non-nil error
// means the job must not be recorded (its ticket is redone by a later run).
// A record with a non-nil error is written before the worker stops.
func (w *Worker) process(ctx context.Context, job jobs.Job) (*results.Record, error) {
	source, err := w.resolve(job.SourceKey, "source")
	if err != nil {
		return w.resolveFailure(job, err)
	}
	var sourceMap []byte
	if job.HasSourceMap() {
		sourceMap, err = w.resolve(job.SourceMapKey, "source map")
		if err != nil {
			return w.resolveFailure(job, err)
		}
	}

	if reason, ok := w.opts.Strategy.Screen(source, sourceMap); !ok {
		rec := results.Ignored(job, reason)
		return &rec, nil
	}

	body := identify.Request{Source: string(source)}
	if sourceMap != nil {
		m := string(sourceMap)
		body.Map = &m
	}

	var cacheKey string
	if w.cacheEnabled() {
		cacheKey = reqcache.Request{
			Endpoint: w.opts.Strategy.Endpoint(),
			Headers:  w.opts.Headers,
			Source:   body.Source,
			Map:      body.Map,
		}.Key()
		if payload, hit, err := w.opts.Cache.Get(ctx, cacheKey); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, w.logger), "request cache lookup failed", "request_cache_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "request sent to the service"),
			)
		} else if hit {
			rec := w.success(job, payload)
			rec.Cached = rec.Status == results.StatusSuccess
			return &rec, nil
		}
	}

	outcome, err := w.opts.Service.Identify(ctx, w.opts.Strategy.Endpoint(), body)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}

	var rec results.Record
	switch outcome.Kind {
	case identify.KindSuccess:
		rec = w.success(job, outcome.Payload)
		if cacheKey != "" && rec.Status == results.StatusSuccess {
			if _, putErr := w.opts.Cache.Put(ctx, cacheKey, w.opts.Strategy.Endpoint(), outcome.Payload); putErr != nil {
				logging.WarnWithContext(logging.WithContext(ctx, w.logger), "request cache store failed", "request_cache_error",
					logging.Error(putErr),
					logging.String(logging.FieldImpact, "response not cached"),
				)
			}
		}
	case identify.KindIgnored:
		rec = results.Ignored(job, ignoreReason(outcome))
	default:
		rec = results.Failure(job, failureMessage(outcome))
	}
	return &rec, err
}

func (w *Worker) resolve(key, what string) ([]byte, error) {
	data, err := w.opts.Store.Resolve(key)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s %s is not valid UTF-8", what, key)
	}
	return data, nil
}

// resolveFailure separates integrity failures, which stop the run, from
// unreadable blobs, which are recorded against the job.
func (w *Worker) resolveFailure(job jobs.Job, err error) (*results.Record, error) {
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, services.Wrap(services.ErrJobResolution, "worker", "resolve content", job.ID(), err)
	}
	rec := results.Failure(job, err.Error())
	return &rec, nil
}

func (w *Worker) success(job jobs.Job, payload []byte) results.Record {
	rec, err := results.Success(job, payload)
	if err != nil {
		return results.Failure(job, err.Error())
	}
	return rec
}

func ignoreReason(outcome identify.Outcome) string {
	if outcome.Message != "" {
		return outcome.Message
	}
	return "service could not parse input"
}

func failureMessage(outcome identify.Outcome) string {
	if outcome.StatusCode == 0 {
		return outcome.Message
	}
	if outcome.Message == "" {
		return fmt.Sprintf("status %d", outcome.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", outcome.StatusCode, outcome.Message)
}
