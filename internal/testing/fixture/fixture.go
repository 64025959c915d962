// Package fixture wires the funding services over an in-memory database.
package fixture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	distributiondomain "github.com/smallbiznis/franchisefund/internal/distribution/domain"
	distributionservice "github.com/smallbiznis/franchisefund/internal/distribution/service"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	franchiserepository "github.com/smallbiznis/franchisefund/internal/franchise/repository"
	franchiseservice "github.com/smallbiznis/franchisefund/internal/franchise/service"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	investmentrepository "github.com/smallbiznis/franchisefund/internal/investment/repository"
	investmentservice "github.com/smallbiznis/franchisefund/internal/investment/service"
	lifecycledomain "github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	lifecyclerepository "github.com/smallbiznis/franchisefund/internal/lifecycle/repository"
	lifecycleservice "github.com/smallbiznis/franchisefund/internal/lifecycle/service"
	"github.com/smallbiznis/franchisefund/internal/lock"
	"github.com/smallbiznis/franchisefund/internal/pricefeed"
	sharedomain "github.com/smallbiznis/franchisefund/internal/share/domain"
	sharerepository "github.com/smallbiznis/franchisefund/internal/share/repository"
	shareservice "github.com/smallbiznis/franchisefund/internal/share/service"
	"github.com/smallbiznis/franchisefund/internal/testing/dbtest"
	tokendomain "github.com/smallbiznis/franchisefund/internal/token/domain"
	tokenrepository "github.com/smallbiznis/franchisefund/internal/token/repository"
	tokenservice "github.com/smallbiznis/franchisefund/internal/token/service"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	walletrepository "github.com/smallbiznis/franchisefund/internal/wallet/repository"
	walletservice "github.com/smallbiznis/franchisefund/internal/wallet/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the fake clock start used by every fixture.
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type Env struct {
	DB     *gorm.DB
	Clock  *clock.FakeClock
	Policy *config.FundingPolicyHolder
	Node   *snowflake.Node
	Locker lock.Locker
	Tokens *RecordingClient

	FranchiseRepo  franchisedomain.Repository
	InvestmentRepo investmentdomain.Repository
	WalletRepo     walletdomain.Repository
	LifecycleRepo  lifecycledomain.Repository
	ShareRepo      sharedomain.Repository
	TokenRepo      tokendomain.Repository

	Franchises   franchisedomain.Service
	Investments  investmentdomain.Service
	Wallets      walletdomain.Service
	Distribution distributiondomain.Service
	Lifecycle    lifecycledomain.Service
	TokenOps     tokendomain.Service
	Shares       sharedomain.Service
}

type options struct {
	policy func(*config.FundingPolicy)
	client tokendomain.Client
}

type Option func(*options)

func WithPolicy(fn func(*config.FundingPolicy)) Option {
	return func(o *options) { o.policy = fn }
}

func WithTokenClient(client tokendomain.Client) Option {
	return func(o *options) { o.client = client }
}

func New(t testing.TB, opts ...Option) *Env {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	policy := config.DefaultFundingPolicy()
	if o.policy != nil {
		o.policy(&policy)
	}

	log := zap.NewNop()
	env := &Env{
		DB:     dbtest.Open(t),
		Clock:  clock.NewFakeClock(Epoch),
		Policy: config.NewFundingPolicyHolderFrom(policy),
		Node:   dbtest.Node(t),
		Locker: lock.NewKeyedMutex(),
		Tokens: &RecordingClient{},

		FranchiseRepo:  franchiserepository.Provide(),
		InvestmentRepo: investmentrepository.Provide(),
		WalletRepo:     walletrepository.Provide(),
		LifecycleRepo:  lifecyclerepository.Provide(),
		ShareRepo:      sharerepository.Provide(),
		TokenRepo:      tokenrepository.Provide(),
	}
	var client tokendomain.Client = env.Tokens
	if o.client != nil {
		client = o.client
	}

	env.Investments = investmentservice.New(investmentservice.Params{
		DB: env.DB, Log: log, Repo: env.InvestmentRepo, Clock: env.Clock,
	})
	env.Wallets = walletservice.New(walletservice.Params{
		DB: env.DB, Log: log, GenID: env.Node, Repo: env.WalletRepo,
		Clock: env.Clock, Locker: env.Locker, Policy: env.Policy,
	})
	env.Distribution = distributionservice.New(distributionservice.Params{
		Log: log, WalletSvc: env.Wallets, PriceFeed: pricefeed.NewStaticProvider(env.Policy), Policy: env.Policy,
	})
	env.Lifecycle = lifecycleservice.New(lifecycleservice.Params{
		DB: env.DB, Log: log, GenID: env.Node, Repo: env.LifecycleRepo,
		FranchiseRepo: env.FranchiseRepo, InvestmentSvc: env.Investments,
		WalletSvc: env.Wallets, DistributionSvc: env.Distribution,
		Locker: env.Locker, Clock: env.Clock, Policy: env.Policy,
	})
	env.TokenOps = tokenservice.New(tokenservice.Params{
		DB: env.DB, Log: log, GenID: env.Node, Repo: env.TokenRepo,
		Client: client, Clock: env.Clock, Policy: env.Policy,
	})
	env.Franchises = franchiseservice.New(franchiseservice.Params{
		DB: env.DB, Log: log, GenID: env.Node, Repo: env.FranchiseRepo,
		InvestmentRepo: env.InvestmentRepo, WalletSvc: env.Wallets,
		LifecycleSvc: env.Lifecycle, Clock: env.Clock, Policy: env.Policy,
	})
	env.Shares = shareservice.New(shareservice.Params{
		DB: env.DB, Log: log, GenID: env.Node, Repo: env.ShareRepo,
		FranchiseRepo: env.FranchiseRepo, InvestmentSvc: env.Investments,
		LifecycleSvc: env.Lifecycle, TokenSvc: env.TokenOps,
		Locker: env.Locker, Clock: env.Clock, Policy: env.Policy,
	})

	t.Cleanup(env.WaitTokens)
	return env
}

// WaitTokens blocks until background token deliveries finish.
func (e *Env) WaitTokens() {
	if waiter, ok := e.TokenOps.(interface{ Wait() }); ok {
		waiter.Wait()
	}
}

// Franchiser creates a brand with the given name.
func (e *Env) Franchiser(t testing.TB, name string) franchisedomain.Franchiser {
	t.Helper()
	franchiser, err := e.Franchises.CreateFranchiser(context.Background(), franchisedomain.CreateFranchiserRequest{Name: name})
	require.NoError(t, err)
	return franchiser
}

// Franchise opens a funding round with the given total, fee, setup cost and
// working capital.
func (e *Env) Franchise(t testing.TB, franchiser franchisedomain.Franchiser, total, fee, setup, working string) franchisedomain.CreateFranchiseResponse {
	t.Helper()
	resp, err := e.Franchises.CreateFranchise(context.Background(), franchisedomain.CreateFranchiseRequest{
		FranchiserID:    franchiser.ID,
		Name:            franchiser.Name + " outlet",
		EscrowAddress:   "escrow-" + franchiser.Slug,
		TotalInvestment: decimal.RequireFromString(total),
		FranchiseFee:    decimal.RequireFromString(fee),
		SetupCost:       decimal.RequireFromString(setup),
		WorkingCapital:  decimal.RequireFromString(working),
		SharesIssued:    0,
		SharePrice:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	return resp
}

// Buy purchases amount dollars of shares at 100 per share.
func (e *Env) Buy(ctx context.Context, franchiseID snowflake.ID, investor, amount, key string) (sharedomain.PurchaseResult, error) {
	total := decimal.RequireFromString(amount)
	shares := total.Div(decimal.NewFromInt(100)).IntPart()
	if shares <= 0 {
		shares = 1
	}
	return e.Shares.Purchase(ctx, sharedomain.PurchaseRequest{
		FranchiseID:    franchiseID,
		InvestorID:     investor,
		Shares:         shares,
		PricePerShare:  decimal.NewFromInt(100),
		TotalAmount:    total,
		IdempotencyKey: key,
	})
}

// RecordingClient is a token service double that remembers every call.
type RecordingClient struct {
	mu    sync.Mutex
	Err   error
	mints []tokendomain.MintRequest
	burns []tokendomain.BurnRequest
}

func (c *RecordingClient) Mint(ctx context.Context, req tokendomain.MintRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.mints = append(c.mints, req)
	return nil
}

func (c *RecordingClient) Burn(ctx context.Context, req tokendomain.BurnRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.burns = append(c.burns, req)
	return nil
}

func (c *RecordingClient) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

func (c *RecordingClient) Mints() []tokendomain.MintRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]tokendomain.MintRequest(nil), c.mints...)
}

func (c *RecordingClient) Burns() []tokendomain.BurnRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]tokendomain.BurnRequest(nil), c.burns...)
}
