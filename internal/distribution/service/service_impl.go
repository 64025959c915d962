package service

import (
	"context"

	"github.com/smallbiznis/franchisefund/internal/config"
	"github.com/smallbiznis/franchisefund/internal/distribution/domain"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	"github.com/smallbiznis/franchisefund/internal/pricefeed"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	WalletSvc walletdomain.Service
	PriceFeed pricefeed.Provider
	Policy    *config.FundingPolicyHolder `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	walletSvc walletdomain.Service
	priceFeed pricefeed.Provider
	policy    *config.FundingPolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("distribution.service"),
		walletSvc: p.WalletSvc,
		priceFeed: p.PriceFeed,
		policy:    p.Policy,
	}
}

func (s *Service) Distribute(ctx context.Context, tx *gorm.DB, franchise franchisedomain.Franchise, inv investmentdomain.Investment) (domain.Result, error) {
	franchiseKey := franchise.ID.String()
	log := s.log.With(
		zap.String("franchise_id", franchiseKey),
		zap.String("investment_id", inv.ID.String()),
	)

	result := domain.Result{Balanced: inv.ComponentsBalanced(s.policy.Get().Tolerance())}
	if !result.Balanced {
		log.Warn("investment components do not sum to total, distributing components as recorded",
			zap.String("total_investment", inv.TotalInvestment.StringFixed(2)),
			zap.String("components_total", inv.ComponentsTotal().StringFixed(2)),
		)
	}

	escrow, err := s.walletSvc.FindActiveEscrow(ctx, tx, franchise.ID)
	if err != nil {
		return domain.Result{}, err
	}
	result.EscrowWalletID = escrow.ID.String()

	quote, err := s.priceFeed.Rate(ctx)
	if err != nil {
		return domain.Result{}, err
	}
	result.ExchangeRate = quote.Rate
	result.RateSource = quote.Source

	operating, created, err := s.walletSvc.CreateOperating(ctx, tx, walletdomain.CreateOperatingRequest{
		FranchiseID:  franchise.ID,
		USDAmount:    inv.WorkingCapital,
		ExchangeRate: quote.Rate,
	})
	if err != nil {
		return domain.Result{}, err
	}
	result.OperatingWallet = operating
	if !created {
		// keep the rate the wallet was funded at
		result.ExchangeRate = operating.ExchangeRate
	}

	writes := 0
	if inv.WorkingCapital.IsPositive() {
		txn, inserted, err := s.walletSvc.AppendTransaction(ctx, tx, walletdomain.AppendTransactionRequest{
			Wallet:         operating,
			Direction:      walletdomain.DirectionCredit,
			Amount:         inv.WorkingCapital,
			Description:    "Working capital from funding round",
			Reference:      inv.ID.String(),
			IdempotencyKey: domain.WorkingCapitalKey(franchiseKey),
		})
		if err != nil {
			return domain.Result{}, err
		}
		result.WorkingCapitalTxn = txn
		if inserted {
			writes++
		}
	}

	if err := s.walletSvc.Deactivate(ctx, tx, escrow.ID); err != nil {
		return domain.Result{}, err
	}

	feeTxn, inserted, err := s.walletSvc.CreditBrand(ctx, tx, walletdomain.BrandCreditRequest{
		FranchiserID:   franchise.FranchiserID,
		FranchiseID:    franchise.ID,
		Category:       walletdomain.BrandCategoryFranchiseFee,
		Amount:         inv.FranchiseFee,
		Description:    "Franchise fee for " + franchise.Name,
		Reference:      inv.ID.String(),
		IdempotencyKey: domain.FranchiseFeeKey(franchiseKey),
	})
	if err != nil {
		return domain.Result{}, err
	}
	result.FranchiseFeeTxn = feeTxn
	if inserted {
		writes++
	}

	setupTxn, inserted, err := s.walletSvc.CreditBrand(ctx, tx, walletdomain.BrandCreditRequest{
		FranchiserID:   franchise.FranchiserID,
		FranchiseID:    franchise.ID,
		Category:       walletdomain.BrandCategorySetupCost,
		Amount:         inv.SetupCost,
		Description:    "Setup cost for " + franchise.Name,
		Reference:      inv.ID.String(),
		IdempotencyKey: domain.SetupCostKey(franchiseKey),
	})
	if err != nil {
		return domain.Result{}, err
	}
	result.SetupCostTxn = setupTxn
	if inserted {
		writes++
	}

	result.Replayed = !created && writes == 0
	log.Info("funds distributed",
		zap.String("operating_wallet_id", operating.ID.String()),
		zap.String("working_capital", inv.WorkingCapital.StringFixed(2)),
		zap.String("franchise_fee", inv.FranchiseFee.StringFixed(2)),
		zap.String("setup_cost", inv.SetupCost.StringFixed(2)),
		zap.String("exchange_rate", result.ExchangeRate.String()),
		zap.String("rate_source", result.RateSource),
		zap.Bool("replayed", result.Replayed),
	)
	return result, nil
}
