// Package dispatch runs the periodic digest batch: for every active subscription it fetches
// the day's panchang, renders it and mails it, recording the send time on success.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/panchang/internal/model"
	"github.com/sakif/panchang/internal/panchang"
)

const (
	DefaultWorkers = 1
	DefaultTimeout = time.Minute

	// markSentTimeout bounds the last_sent write once a digest has gone out.
	markSentTimeout = 10 * time.Second
)

// SubscriptionStore is the slice of the subscription repository the batch needs.
type SubscriptionStore interface {
	ListActive(ctx context.Context) ([]model.Subscription, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
}

type Fetcher interface {
	Fetch(ctx context.Context, locationID string, date time.Time) (*panchang.Payload, error)
}

type Notifier interface {
	SendDigest(ctx context.Context, to, html string) bool
}

// Options tunes a Dispatcher. Zero values take the defaults.
type Options struct {
	// Workers bounds how many subscriptions are processed at once. 1 is sequential.
	Workers int
	// Timeout bounds the work for a single subscription.
	Timeout time.Duration
}

// Report summarises one batch. Total is the sum of the other counters.
type Report struct {
	Total       int `json:"total"`
	Sent        int `json:"sent"`
	FetchFailed int `json:"fetch_failed"`
	SendFailed  int `json:"send_failed"`
	Errored     int `json:"errored"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFetchFailed
	outcomeSendFailed
	outcomeErrored
)

func (r *Report) add(o outcome) {
	r.Total++
	switch o {
	case outcomeSent:
		r.Sent++
	case outcomeFetchFailed:
		r.FetchFailed++
	case outcomeSendFailed:
		r.SendFailed++
	default:
		r.Errored++
	}
}

// Dispatcher runs digest batches. Run is not meant to be called concurrently with itself;
// the Scheduler prevents overlapping runs.
type Dispatcher struct {
	store    SubscriptionStore
	fetcher  Fetcher
	notifier Notifier
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	now      func() time.Time
}

func New(store SubscriptionStore, fetcher Fetcher, notifier Notifier, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Dispatcher{
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger,
		workers:  opts.Workers,
		timeout:  opts.Timeout,
		now:      time.Now,
	}
}

// Run processes every active subscription once. A failure for one subscription, including a
// panic, is logged and counted but never stops the others. The returned error is non-nil only
// when the batch could not be loaded or ctx was cancelled before every subscription was
// submitted.
func (d *Dispatcher) Run(ctx context.Context) (Report, error) {
	start := d.now()

	subs, err := d.store.ListActive(ctx)
	if err != nil {
		d.logger.Error("failed to load active subscriptions", slog.String("error", err.Error()))
		return Report{}, fmt.Errorf("dispatch: loading subscriptions: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	g.SetLimit(d.workers)

	var runErr error
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("dispatch: batch interrupted: %w", err)
			break
		}
		g.Go(func() error {
			o := d.process(ctx, sub)
			mu.Lock()
			report.add(o)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	d.logger.Info("digest batch finished",
		slog.Int("total", report.Total),
		slog.Int("sent", report.Sent),
		slog.Int("fetch_failed", report.FetchFailed),
		slog.Int("send_failed", report.SendFailed),
		slog.Int("errored", report.Errored),
		slog.Duration("duration", d.now().Sub(start)),
	)
	return report, runErr
}

// Job adapts Run to a scheduler callback bound to ctx.
func (d *Dispatcher) Job(ctx context.Context) func() {
	return func() {
		d.Run(ctx)
	}
}

func (d *Dispatcher) process(ctx context.Context, sub model.Subscription) (o outcome) {
	log := d.logger.With(slog.Int64("subscription_id", sub.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing subscription", slog.Any("panic", r))
			o = outcomeErrored
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	payload, err := d.fetcher.Fetch(ctx, sub.LocationID, time.Time{})
	if err != nil {
		log.Warn("skipping subscription, fetch failed",
			slog.String("location_id", sub.LocationID),
			slog.String("error", err.Error()),
		)
		return outcomeFetchFailed
	}

	html, err := panchang.RenderString(sub.CityName, payload.Date, panchang.Parse(payload.RawData))
	if err != nil {
		log.Error("failed to render digest", slog.String("error", err.Error()))
		return outcomeErrored
	}

	if !d.notifier.SendDigest(ctx, sub.Email, html) {
		return outcomeSendFailed
	}

	// The mail is already out: record it even if the subscription's budget or the batch ctx ran out.
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), markSentTimeout)
	defer cancelWrite()
	if err := d.store.MarkSent(writeCtx, sub.ID, d.now().UTC()); err != nil {
		log.Error("digest sent but last_sent not recorded", slog.String("error", err.Error()))
		return outcomeErrored
	}

	log.Debug("digest sent", slog.String("email", sub.Email))
	return outcomeSent
}
