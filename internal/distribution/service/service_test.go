package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/distribution/domain"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	"github.com/smallbiznis/franchisefund/internal/pricefeed"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockWallets struct {
	walletdomain.Service
	mock.Mock
}

func (m *mockWallets) FindActiveEscrow(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID) (walletdomain.FranchiseWallet, error) {
	args := m.Called(ctx, tx, franchiseID)
	return args.Get(0).(walletdomain.FranchiseWallet), args.Error(1)
}

func (m *mockWallets) CreateOperating(ctx context.Context, tx *gorm.DB, req walletdomain.CreateOperatingRequest) (walletdomain.FranchiseWallet, bool, error) {
	args := m.Called(ctx, tx, req)
	return args.Get(0).(walletdomain.FranchiseWallet), args.Bool(1), args.Error(2)
}

func (m *mockWallets) AppendTransaction(ctx context.Context, tx *gorm.DB, req walletdomain.AppendTransactionRequest) (walletdomain.WalletTransaction, bool, error) {
	args := m.Called(ctx, tx, req)
	return args.Get(0).(walletdomain.WalletTransaction), args.Bool(1), args.Error(2)
}

func (m *mockWallets) Deactivate(ctx context.Context, tx *gorm.DB, walletID snowflake.ID) error {
	args := m.Called(ctx, tx, walletID)
	return args.Error(0)
}

func (m *mockWallets) CreditBrand(ctx context.Context, tx *gorm.DB, req walletdomain.BrandCreditRequest) (walletdomain.BrandTransaction, bool, error) {
	args := m.Called(ctx, tx, req)
	return args.Get(0).(walletdomain.BrandTransaction), args.Bool(1), args.Error(2)
}

type fixedRate struct {
	quote pricefeed.Quote
	err   error
}

func (f fixedRate) Rate(context.Context) (pricefeed.Quote, error) { return f.quote, f.err }

func newTestService(wallets walletdomain.Service, feed pricefeed.Provider) *Service {
	return New(Params{Log: zap.NewNop(), WalletSvc: wallets, PriceFeed: feed}).(*Service)
}

func testFranchise() (franchisedomain.Franchise, investmentdomain.Investment) {
	franchise := franchisedomain.Franchise{ID: 11, FranchiserID: 7, Name: "Acme Central"}
	inv := investmentdomain.Investment{
		ID:              21,
		FranchiseID:     11,
		TotalInvestment: decimal.NewFromInt(100000),
		TotalInvested:   decimal.NewFromInt(100000),
		FranchiseFee:    decimal.NewFromInt(20000),
		SetupCost:       decimal.NewFromInt(50000),
		WorkingCapital:  decimal.NewFromInt(30000),
	}
	return franchise, inv
}

func TestDistributeSplitsComponents(t *testing.T) {
	wallets := &mockWallets{}
	ctx := context.Background()
	franchise, inv := testFranchise()
	escrow := walletdomain.FranchiseWallet{ID: 31, FranchiseID: franchise.ID, Kind: walletdomain.WalletKindEscrow}
	operating := walletdomain.FranchiseWallet{ID: 32, FranchiseID: franchise.ID, Kind: walletdomain.WalletKindOperating, ExchangeRate: decimal.NewFromInt(150)}

	wallets.On("FindActiveEscrow", ctx, mock.Anything, franchise.ID).Return(escrow, nil)
	wallets.On("CreateOperating", ctx, mock.Anything, mock.MatchedBy(func(req walletdomain.CreateOperatingRequest) bool {
		return req.USDAmount.Equal(inv.WorkingCapital) && req.ExchangeRate.Equal(decimal.NewFromInt(150))
	})).Return(operating, true, nil)
	wallets.On("AppendTransaction", ctx, mock.Anything, mock.MatchedBy(func(req walletdomain.AppendTransactionRequest) bool {
		return req.IdempotencyKey == domain.WorkingCapitalKey("11") && req.Direction == walletdomain.DirectionCredit
	})).Return(walletdomain.WalletTransaction{ID: 41}, true, nil)
	wallets.On("Deactivate", ctx, mock.Anything, escrow.ID).Return(nil)
	wallets.On("CreditBrand", ctx, mock.Anything, mock.MatchedBy(func(req walletdomain.BrandCreditRequest) bool {
		return req.Category == walletdomain.BrandCategoryFranchiseFee && req.Amount.Equal(inv.FranchiseFee) && req.FranchiserID == 7
	})).Return(walletdomain.BrandTransaction{ID: 51}, true, nil)
	wallets.On("CreditBrand", ctx, mock.Anything, mock.MatchedBy(func(req walletdomain.BrandCreditRequest) bool {
		return req.Category == walletdomain.BrandCategorySetupCost && req.Amount.Equal(inv.SetupCost)
	})).Return(walletdomain.BrandTransaction{ID: 52}, true, nil)

	svc := newTestService(wallets, fixedRate{quote: pricefeed.Quote{Rate: decimal.NewFromInt(150), Source: pricefeed.SourceStatic}})
	result, err := svc.Distribute(ctx, nil, franchise, inv)
	require.NoError(t, err)

	assert.True(t, result.Balanced)
	assert.False(t, result.Replayed)
	assert.Equal(t, "31", result.EscrowWalletID)
	assert.Equal(t, operating.ID, result.OperatingWallet.ID)
	assert.Equal(t, snowflake.ID(51), result.FranchiseFeeTxn.ID)
	assert.Equal(t, snowflake.ID(52), result.SetupCostTxn.ID)
	assert.Equal(t, pricefeed.SourceStatic, result.RateSource)
	wallets.AssertExpectations(t)
}

func TestDistributeReplayKeepsOriginalRate(t *testing.T) {
	wallets := &mockWallets{}
	ctx := context.Background()
	franchise, inv := testFranchise()
	escrow := walletdomain.FranchiseWallet{ID: 31}
	operating := walletdomain.FranchiseWallet{ID: 32, ExchangeRate: decimal.NewFromInt(140)}

	wallets.On("FindActiveEscrow", ctx, mock.Anything, franchise.ID).Return(escrow, nil)
	wallets.On("CreateOperating", ctx, mock.Anything, mock.Anything).Return(operating, false, nil)
	wallets.On("AppendTransaction", ctx, mock.Anything, mock.Anything).Return(walletdomain.WalletTransaction{ID: 41}, false, nil)
	wallets.On("Deactivate", ctx, mock.Anything, escrow.ID).Return(nil)
	wallets.On("CreditBrand", ctx, mock.Anything, mock.Anything).Return(walletdomain.BrandTransaction{}, false, nil)

	svc := newTestService(wallets, fixedRate{quote: pricefeed.Quote{Rate: decimal.NewFromInt(160), Source: pricefeed.SourceFeed}})
	result, err := svc.Distribute(ctx, nil, franchise, inv)
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.True(t, result.ExchangeRate.Equal(decimal.NewFromInt(140)))
}

func TestDistributeStopsWithoutEscrow(t *testing.T) {
	wallets := &mockWallets{}
	ctx := context.Background()
	franchise, inv := testFranchise()
	wallets.On("FindActiveEscrow", ctx, mock.Anything, franchise.ID).Return(walletdomain.FranchiseWallet{}, walletdomain.ErrEscrowNotFound)

	svc := newTestService(wallets, fixedRate{})
	_, err := svc.Distribute(ctx, nil, franchise, inv)
	require.ErrorIs(t, err, walletdomain.ErrEscrowNotFound)
	wallets.AssertNotCalled(t, "CreateOperating", mock.Anything, mock.Anything, mock.Anything)
}

func TestDistributeFailsOnPriceFeedError(t *testing.T) {
	wallets := &mockWallets{}
	ctx := context.Background()
	franchise, inv := testFranchise()
	wallets.On("FindActiveEscrow", ctx, mock.Anything, franchise.ID).Return(walletdomain.FranchiseWallet{ID: 31}, nil)

	svc := newTestService(wallets, fixedRate{err: pricefeed.ErrInvalidRate})
	_, err := svc.Distribute(ctx, nil, franchise, inv)
	require.Error(t, err)
	assert.True(t, apperror.IsExternalServiceFailure(err))
}

func TestDistributeUnbalancedComponentsStillDistributes(t *testing.T) {
	wallets := &mockWallets{}
	ctx := context.Background()
	franchise, inv := testFranchise()
	inv.SetupCost = decimal.NewFromInt(45000)

	wallets.On("FindActiveEscrow", ctx, mock.Anything, franchise.ID).Return(walletdomain.FranchiseWallet{ID: 31}, nil)
	wallets.On("CreateOperating", ctx, mock.Anything, mock.Anything).Return(walletdomain.FranchiseWallet{ID: 32}, true, nil)
	wallets.On("AppendTransaction", ctx, mock.Anything, mock.Anything).Return(walletdomain.WalletTransaction{ID: 41}, true, nil)
	wallets.On("Deactivate", ctx, mock.Anything, snowflake.ID(31)).Return(nil)
	wallets.On("CreditBrand", ctx, mock.Anything, mock.MatchedBy(func(req walletdomain.BrandCreditRequest) bool {
		return req.Category == walletdomain.BrandCategorySetupCost && req.Amount.Equal(decimal.NewFromInt(45000))
	})).Return(walletdomain.BrandTransaction{ID: 52}, true, nil)
	wallets.On("CreditBrand", ctx, mock.Anything, mock.Anything).Return(walletdomain.BrandTransaction{ID: 51}, true, nil)

	svc := newTestService(wallets, fixedRate{quote: pricefeed.Quote{Rate: decimal.NewFromInt(150), Source: pricefeed.SourceStatic}})
	result, err := svc.Distribute(ctx, nil, franchise, inv)
	require.NoError(t, err)

	assert.False(t, result.Balanced)
	assert.Equal(t, snowflake.ID(52), result.SetupCostTxn.ID)
	wallets.AssertExpectations(t)
}
