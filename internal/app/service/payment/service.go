package payment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	subscription "github.com/sereniyou/payments/internal/app/service/subscription"
	"github.com/sereniyou/payments/internal/models"
	"github.com/sereniyou/payments/internal/platform/events"
	"github.com/sereniyou/payments/internal/platform/identity"
	"github.com/sereniyou/payments/internal/platform/mpesa"
	"github.com/sereniyou/payments/pkg/config"
	"github.com/sereniyou/payments/pkg/types"
)

// Pusher submits STK push requests.
type Pusher interface {
	STKPush(ctx context.Context, accessToken string, in mpesa.PushInput) (*mpesa.STKPushResponse, error)
}

// Activator grants the subscription bought by a completed payment. tx is the
// transaction the payment row was finalized in, or nil.
type Activator interface {
	Activate(ctx context.Context, tx *gorm.DB, pr *models.PaymentRequest, plan *types.Plan, reason types.SubscriberChangeReason) (*models.Subscriber, error)
}

type Deps struct {
	Config    *config.Config
	Log       *zap.SugaredLogger
	Verifier  identity.Verifier
	Tokens    mpesa.TokenProvider
	Pusher    Pusher
	Store     Store
	Activator Activator
	Events    events.Publisher
	Now       func() time.Time
}

// Service implements the STK push handshake: initiation, result finalization
// and status queries. It holds no mutable state.
type Service struct {
	cfg       *config.Config
	log       *zap.SugaredLogger
	verifier  identity.Verifier
	tokens    mpesa.TokenProvider
	pusher    Pusher
	store     Store
	activator Activator
	events    events.Publisher
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		cfg:       d.Config,
		log:       d.Log,
		verifier:  d.Verifier,
		tokens:    d.Tokens,
		pusher:    d.Pusher,
		store:     d.Store,
		activator: d.Activator,
		events:    d.Events,
		now:       d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.events == nil {
		s.events = events.NoopPublisher{}
	}
	return s
}

type params struct {
	fx.In

	Cfg      *config.Config
	Log      *zap.SugaredLogger
	Verifier identity.Verifier
	Tokens   mpesa.TokenProvider
	Client   *mpesa.Client
	Store    *GormStore
	Sub      *subscription.Service
	Events   events.Publisher
}

func newFromFx(p params) *Service {
	return NewService(Deps{
		Config:    p.Cfg,
		Log:       p.Log,
		Verifier:  p.Verifier,
		Tokens:    p.Tokens,
		Pusher:    p.Client,
		Store:     p.Store,
		Activator: p.Sub,
		Events:    p.Events,
	})
}

// authenticate resolves the caller of a bearer token.
func (s *Service) authenticate(ctx context.Context, authToken string) (string, error) {
	token, err := identity.BearerToken(authToken)
	if err != nil {
		return "", withKind(ErrUnauthenticated, err)
	}
	userID, err := s.verifier.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrUnavailable) {
			return "", withKind(ErrUpstream, err)
		}
		return "", withKind(ErrUnauthenticated, identity.ErrInvalidToken)
	}
	return userID, nil
}

var Module = fx.Options(
	fx.Provide(NewGormStore, newFromFx),
)
