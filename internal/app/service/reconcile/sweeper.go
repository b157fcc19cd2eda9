package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sereniyou/payments/internal/app/service/payment"
	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/config"
	"github.com/sereniyou/payments/pkg/types"
)

// PendingLister finds payment requests still waiting for a provider result.
type PendingLister interface {
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.PaymentRequest, error)
}

// Querier asks the provider for the state of one push.
type Querier interface {
	STKQuery(ctx context.Context, accessToken, checkoutRequestID string) (*mpesa.QueryResult, error)
}

// Finalizer applies a provider verdict to a pending payment.
type Finalizer interface {
	ApplyOutcome(ctx context.Context, o *payment.Outcome, reason types.SubscriberChangeReason) (*payment.FinalizeResult, error)
}

type SweepStats struct {
	Checked      int
	Completed    int
	Failed       int
	StillPending int
	Errors       int
}

// Sweeper settles payments whose callback never arrived by querying the
// provider for each pending request older than PendingAfter.
type Sweeper struct {
	cfg      config.ReconcilerConfig
	store    PendingLister
	tokens   mpesa.TokenProvider
	querier  Querier
	payments Finalizer
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewSweeper(cfg config.ReconcilerConfig, store PendingLister, tokens mpesa.TokenProvider, querier Querier, payments Finalizer, log *zap.SugaredLogger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.PendingAfter <= 0 {
		cfg.PendingAfter = 3 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Sweeper{
		cfg:      cfg,
		store:    store,
		tokens:   tokens,
		querier:  querier,
		payments: payments,
		log:      log,
		now:      time.Now,
	}
}

// SweepOnce queries the provider for one batch of stale pending payments.
// Per-row failures are logged and counted; only a failure to list or to get
// a token aborts the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	rows, err := s.store.ListStalePending(ctx, s.now().Add(-s.cfg.PendingAfter), s.cfg.BatchSize)
	if err != nil {
		return stats, err
	}
	if len(rows) == 0 {
		return stats, nil
	}

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return stats, err
	}

	for _, pr := range rows {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		log := s.log.With("checkout_request_id", pr.CheckoutRequestID, "user_id", pr.UserID)

		q, err := s.querier.STKQuery(ctx, token, pr.CheckoutRequestID)
		if errors.Is(err, mpesa.ErrStillProcessing) {
			stats.StillPending++
			continue
		}
		if err != nil {
			stats.Errors++
			log.Warnw("reconcile_query_failed", "err", err)
			continue
		}

		res, err := s.payments.ApplyOutcome(ctx, payment.OutcomeFromQuery(q), types.SubscriberChangeReasonReconcile)
		if err != nil {
			stats.Errors++
			log.Errorw("reconcile_finalize_failed", "err", err)
			continue
		}
		switch {
		case !res.Transitioned:
			// the callback won the race
		case res.Payment.Status == types.PaymentStatusCompleted:
			stats.Completed++
		default:
			stats.Failed++
		}
	}
	return stats, nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			stats, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Errorw("reconcile_sweep_failed", "err", err)
				}
				continue
			}
			if stats.Checked > 0 {
				s.log.Infow("reconcile_sweep_done",
					"checked", stats.Checked,
					"completed", stats.Completed,
					"failed", stats.Failed,
					"still_pending", stats.StillPending,
					"errors", stats.Errors,
				)
			}
		}
	}
}

type params struct {
	fx.In

	Cfg      *config.Config
	Store    *payment.GormStore
	Tokens   mpesa.TokenProvider
	Client   *mpesa.Client
	Payments *payment.Service
	Log      *zap.SugaredLogger
}

func newFromFx(p params) *Sweeper {
	return NewSweeper(p.Cfg.Reconciler, p.Store, p.Tokens, p.Client, p.Payments, p.Log)
}

// register starts the sweep loop with the app when reconciler.enabled is set.
func register(lc fx.Lifecycle, cfg *config.Config, s *Sweeper) {
	if !cfg.Reconciler.Enabled {
		s.log.Infow("reconciler disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var ticker *time.Ticker

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ticker = time.NewTicker(s.cfg.Interval)
			s.log.Infow("starting reconciler", "interval", s.cfg.Interval, "pending_after", s.cfg.PendingAfter)
			go func() {
				defer close(done)
				s.Run(ctx, ticker.C)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			ticker.Stop()
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

var Module = fx.Options(
	fx.Provide(newFromFx),
	fx.Invoke(register),
)
