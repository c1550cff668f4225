package api

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olehkaliuzhnyi/ethwallet/provider"
)

// pollInterval is the base cadence of the block-tip timer once it is
// caught up and healthy.
const pollInterval = 4 * time.Second

// pollInitialBackoff and pollMaxBackoff bound the truncated exponential
// backoff applied on repeated getBlockNumber failures.
const (
	pollInitialBackoff = 4 * time.Second
	pollMaxBackoff     = 120 * time.Second
)

// Poller is the polling block-tip notifier: it periodically calls
// GetBlockNumber and emits a provider.NewBlockEvent on the events channel
// whenever the observed number strictly increases. Repeated failures
// widen the poll interval with truncated exponential backoff; the first
// success resets it.
type Poller struct {
	provider *Provider
	logger   *slog.Logger

	events chan any

	mu      sync.Mutex
	polling bool
	cancel  context.CancelFunc
	done    chan struct{}

	lastBlock atomic.Int64 // -1 means "no cached block number"

	// interval, backoffInitial, and backoffMax default to pollInterval,
	// pollInitialBackoff, and pollMaxBackoff; tests shrink them to keep
	// the poll loop's real-time behavior exercisable in milliseconds.
	interval       time.Duration
	backoffInitial time.Duration
	backoffMax     time.Duration
}

func newPoller(p *Provider, logger *slog.Logger) *Poller {
	pl := &Poller{
		provider:       p,
		logger:         logger.With("subcomponent", "poller"),
		events:         make(chan any, 64),
		interval:       pollInterval,
		backoffInitial: pollInitialBackoff,
		backoffMax:     pollMaxBackoff,
	}
	pl.lastBlock.Store(-1)
	return pl
}

// Events returns the channel NewBlockEvent and EtherPriceChangedEvent
// values are delivered on while polling is active.
func (pl *Poller) Events() <-chan any { return pl.events }

// Polling reports whether the notifier is currently running.
func (pl *Poller) Polling() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.polling
}

// StartPolling begins the block-tip timer if it is not already running.
func (pl *Poller) StartPolling() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.polling {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	pl.cancel = cancel
	pl.done = make(chan struct{})
	pl.polling = true

	pl.logger.Info("starting block-tip polling", "interval", pl.interval)
	go pl.run(ctx, pl.done)
}

// StopPolling halts the timer and waits for the poll goroutine to exit.
func (pl *Poller) StopPolling() {
	pl.mu.Lock()
	if !pl.polling {
		pl.mu.Unlock()
		return
	}
	cancel := pl.cancel
	done := pl.done
	pl.polling = false
	pl.mu.Unlock()

	cancel()
	<-done
	pl.logger.Info("stopped block-tip polling")
}

// Reset clears the cached block number, so the next successful poll is
// always treated as an increase and emits a NewBlockEvent.
func (pl *Poller) Reset() {
	pl.lastBlock.Store(-1)
}

func (pl *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := pl.backoffInitial
	timer := time.NewTimer(0)
	defer timer.Stop()

	var lastPrice float64
	havePrice := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		num, err := pl.fetchBlockNumber(ctx)
		if err != nil {
			pl.logger.Warn("poll failed, backing off", "error", err, "backoff", backoff)
			timer.Reset(backoff)
			backoff *= 2
			if backoff > pl.backoffMax {
				backoff = pl.backoffMax
			}
			continue
		}

		backoff = pl.backoffInitial
		if last := pl.lastBlock.Load(); last < 0 || num > last {
			pl.lastBlock.Store(num)
			pl.emit(provider.NewBlockEvent{Number: num})
		}

		if pl.provider.cfg.PriceURL != "" {
			price, err := pl.fetchEtherPrice(ctx)
			switch {
			case err != nil:
				pl.logger.Warn("ether price poll failed", "error", err)
			case !havePrice || price != lastPrice:
				lastPrice, havePrice = price, true
				pl.emit(provider.EtherPriceChangedEvent{USD: price})
			}
		}

		timer.Reset(pl.interval)
	}
}

// fetchBlockNumber awaits the Provider's GetBlockNumber promise
// synchronously; safe here because it runs on the poller's own goroutine,
// never on the promise executor or the caller's goroutine.
func (pl *Poller) fetchBlockNumber(ctx context.Context) (int64, error) {
	type result struct {
		num int64
		err error
	}
	ch := make(chan result, 1)
	pl.provider.GetBlockNumber().OnCompletion(func(num int64, err error) {
		ch <- result{num, err}
	})
	select {
	case r := <-ch:
		return r.num, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (pl *Poller) fetchEtherPrice(ctx context.Context) (float64, error) {
	type result struct {
		usd float64
		err error
	}
	ch := make(chan result, 1)
	pl.provider.GetEtherPrice().OnCompletion(func(usd float64, err error) {
		ch <- result{usd, err}
	})
	select {
	case r := <-ch:
		return r.usd, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (pl *Poller) emit(event any) {
	select {
	case pl.events <- event:
	default:
		pl.logger.Warn("dropping poll event: events channel full")
	}
}
