package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/clock"
	"github.com/smallbiznis/franchisefund/internal/config"
	"github.com/smallbiznis/franchisefund/internal/lock"
	"github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const nativeScale = 9

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Clock  clock.Clock
	Locker lock.Locker
	Policy *config.FundingPolicyHolder `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	clock  clock.Clock
	locker lock.Locker
	policy *config.FundingPolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("wallet.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		clock:  p.Clock,
		locker: p.Locker,
		policy: p.Policy,
	}
}

func (s *Service) OpenEscrow(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID, address string) (domain.FranchiseWallet, error) {
	now := s.clock.Now()
	wallet := domain.FranchiseWallet{
		ID:           s.genID.Generate(),
		FranchiseID:  franchiseID,
		Kind:         domain.WalletKindEscrow,
		Address:      strings.TrimSpace(address),
		Balance:      decimal.Zero,
		USDBalance:   decimal.Zero,
		ExchangeRate: decimal.Zero,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		Status:       domain.WalletStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	inserted, err := s.repo.InsertWallet(ctx, tx, &wallet)
	if err != nil {
		return domain.FranchiseWallet{}, err
	}
	if inserted {
		return wallet, nil
	}

	existing, err := s.repo.FindWallet(ctx, tx, franchiseID, domain.WalletKindEscrow)
	if err != nil {
		return domain.FranchiseWallet{}, err
	}
	if existing == nil {
		return domain.FranchiseWallet{}, domain.ErrEscrowNotFound
	}
	return *existing, nil
}

func (s *Service) FindActiveEscrow(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID) (domain.FranchiseWallet, error) {
	wallet, err := s.repo.FindWallet(ctx, tx, franchiseID, domain.WalletKindEscrow)
	if err != nil {
		return domain.FranchiseWallet{}, err
	}
	if wallet == nil || !wallet.IsActive() {
		return domain.FranchiseWallet{}, domain.ErrEscrowNotFound
	}
	return *wallet, nil
}

func (s *Service) FindOperating(ctx context.Context, tx *gorm.DB, franchiseID snowflake.ID) (*domain.FranchiseWallet, error) {
	return s.repo.FindWallet(ctx, tx, franchiseID, domain.WalletKindOperating)
}

// CreateOperating opens the operating wallet funded with req.USDAmount. The
// second return value is false when the wallet already existed.
func (s *Service) CreateOperating(ctx context.Context, tx *gorm.DB, req domain.CreateOperatingRequest) (domain.FranchiseWallet, bool, error) {
	if req.USDAmount.IsNegative() {
		return domain.FranchiseWallet{}, false, domain.ErrInvalidAmount
	}
	if !req.ExchangeRate.IsPositive() {
		return domain.FranchiseWallet{}, false, domain.ErrInvalidExchangeRate
	}

	now := s.clock.Now()
	wallet := domain.FranchiseWallet{
		ID:           s.genID.Generate(),
		FranchiseID:  req.FranchiseID,
		Kind:         domain.WalletKindOperating,
		Address:      strings.TrimSpace(req.Address),
		Balance:      toNative(req.USDAmount, req.ExchangeRate),
		USDBalance:   req.USDAmount,
		ExchangeRate: req.ExchangeRate,
		TotalIncome:  req.USDAmount,
		TotalExpense: decimal.Zero,
		Status:       domain.WalletStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	inserted, err := s.repo.InsertWallet(ctx, tx, &wallet)
	if err != nil {
		return domain.FranchiseWallet{}, false, err
	}
	if inserted {
		return wallet, true, nil
	}

	existing, err := s.repo.FindWallet(ctx, tx, req.FranchiseID, domain.WalletKindOperating)
	if err != nil {
		return domain.FranchiseWallet{}, false, err
	}
	if existing == nil {
		return domain.FranchiseWallet{}, false, domain.ErrWalletNotFound
	}
	return *existing, false, nil
}

func (s *Service) Deactivate(ctx context.Context, tx *gorm.DB, walletID snowflake.ID) error {
	wallet, err := s.repo.FindWalletByID(ctx, tx, walletID)
	if err != nil {
		return err
	}
	if wallet == nil {
		return domain.ErrWalletNotFound
	}
	if !wallet.IsActive() {
		return nil
	}
	if _, err := s.repo.Deactivate(ctx, tx, walletID, s.clock.Now()); err != nil {
		return err
	}
	return nil
}

// AppendTransaction records a movement whose balance effect the caller has
// already applied.
func (s *Service) AppendTransaction(ctx context.Context, tx *gorm.DB, req domain.AppendTransactionRequest) (domain.WalletTransaction, bool, error) {
	if !req.Amount.IsPositive() {
		return domain.WalletTransaction{}, false, domain.ErrInvalidAmount
	}
	txn := s.newTransaction(req.Wallet, req.Direction, req.Amount, req.Description, req.Reference, req.IdempotencyKey)
	inserted, err := s.repo.InsertTransaction(ctx, tx, &txn)
	if err != nil {
		return domain.WalletTransaction{}, false, err
	}
	if inserted || txn.IdempotencyKey == nil {
		return txn, inserted, nil
	}

	existing, err := s.repo.FindTransactionByKey(ctx, tx, *txn.IdempotencyKey)
	if err != nil {
		return domain.WalletTransaction{}, false, err
	}
	if existing == nil {
		return domain.WalletTransaction{}, false, domain.ErrWalletVersionChanged
	}
	return *existing, false, nil
}

func (s *Service) CreditBrand(ctx context.Context, tx *gorm.DB, req domain.BrandCreditRequest) (domain.BrandTransaction, bool, error) {
	if req.Amount.IsNegative() {
		return domain.BrandTransaction{}, false, domain.ErrInvalidAmount
	}

	entry := domain.BrandTransaction{
		ID:             s.genID.Generate(),
		FranchiserID:   req.FranchiserID,
		FranchiseID:    req.FranchiseID,
		Category:       req.Category,
		Direction:      domain.DirectionCredit,
		Amount:         req.Amount,
		Description:    req.Description,
		Reference:      req.Reference,
		IdempotencyKey: optionalKey(req.IdempotencyKey),
		CreatedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertBrandTransaction(ctx, tx, &entry)
	if err != nil {
		return domain.BrandTransaction{}, false, err
	}
	if inserted || entry.IdempotencyKey == nil {
		return entry, inserted, nil
	}

	existing, err := s.repo.FindBrandTransactionByKey(ctx, tx, *entry.IdempotencyKey)
	if err != nil {
		return domain.BrandTransaction{}, false, err
	}
	if existing == nil {
		return domain.BrandTransaction{}, false, domain.ErrWalletVersionChanged
	}
	return *existing, false, nil
}

func (s *Service) Credit(ctx context.Context, req domain.MovementRequest) (domain.WalletTransaction, error) {
	return s.move(ctx, domain.DirectionCredit, req)
}

func (s *Service) Debit(ctx context.Context, req domain.MovementRequest) (domain.WalletTransaction, error) {
	return s.move(ctx, domain.DirectionDebit, req)
}

func (s *Service) move(ctx context.Context, direction domain.Direction, req domain.MovementRequest) (domain.WalletTransaction, error) {
	if !req.Amount.IsPositive() {
		return domain.WalletTransaction{}, domain.ErrInvalidAmount
	}

	wallet, err := s.repo.FindWalletByID(ctx, s.db, req.WalletID)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if wallet == nil {
		return domain.WalletTransaction{}, domain.ErrWalletNotFound
	}

	unlock, err := s.locker.Lock(ctx, lock.FranchiseKey(wallet.FranchiseID))
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	defer unlock()

	var result domain.WalletTransaction
	err = apperror.RetryOnConflict(ctx, s.policy.Get().ConflictRetries, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txn, err := s.applyMovement(ctx, tx, direction, req)
			if err != nil {
				return err
			}
			result = txn
			return nil
		})
	})
	if err != nil {
		if apperror.IsConcurrencyConflict(err) {
			s.log.Warn("wallet movement conflict retries exhausted",
				zap.String("wallet_id", req.WalletID.String()),
				zap.String("direction", string(direction)),
			)
		}
		return domain.WalletTransaction{}, err
	}
	return result, nil
}

func (s *Service) applyMovement(ctx context.Context, tx *gorm.DB, direction domain.Direction, req domain.MovementRequest) (domain.WalletTransaction, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindTransactionByKey(ctx, tx, key)
		if err != nil {
			return domain.WalletTransaction{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	wallet, err := s.repo.FindWalletByID(ctx, tx, req.WalletID)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if wallet == nil {
		return domain.WalletTransaction{}, domain.ErrWalletNotFound
	}
	if !wallet.IsActive() {
		return domain.WalletTransaction{}, domain.ErrWalletInactive
	}
	if wallet.Kind != domain.WalletKindOperating {
		return domain.WalletTransaction{}, domain.ErrNotOperatingWallet
	}

	next := *wallet
	native := toNative(req.Amount, wallet.ExchangeRate)
	switch direction {
	case domain.DirectionCredit:
		next.USDBalance = wallet.USDBalance.Add(req.Amount)
		next.Balance = wallet.Balance.Add(native)
		next.TotalIncome = wallet.TotalIncome.Add(req.Amount)
	case domain.DirectionDebit:
		if req.Amount.GreaterThan(wallet.USDBalance) {
			return domain.WalletTransaction{}, domain.ErrInsufficientFunds.WithMessage(
				"debit of %s exceeds wallet balance %s", req.Amount.StringFixed(2), wallet.USDBalance.StringFixed(2))
		}
		next.USDBalance = wallet.USDBalance.Sub(req.Amount)
		next.Balance = decimal.Max(decimal.Zero, wallet.Balance.Sub(native))
		next.TotalExpense = wallet.TotalExpense.Add(req.Amount)
	}
	next.UpdatedAt = s.clock.Now()

	ok, err := s.repo.UpdateBalances(ctx, tx, next)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if !ok {
		return domain.WalletTransaction{}, domain.ErrWalletVersionChanged
	}

	txn := s.newTransaction(next, direction, req.Amount, req.Description, req.Reference, key)
	txn.NativeAmount = native
	inserted, err := s.repo.InsertTransaction(ctx, tx, &txn)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if !inserted {
		// a concurrent writer claimed the key; roll back and replay
		return domain.WalletTransaction{}, domain.ErrWalletVersionChanged
	}
	return txn, nil
}

func (s *Service) Balance(ctx context.Context, walletID snowflake.ID) (domain.FranchiseWallet, error) {
	wallet, err := s.repo.FindWalletByID(ctx, s.db, walletID)
	if err != nil {
		return domain.FranchiseWallet{}, err
	}
	if wallet == nil {
		return domain.FranchiseWallet{}, domain.ErrWalletNotFound
	}
	return *wallet, nil
}

func (s *Service) ListWallets(ctx context.Context, franchiseID snowflake.ID) ([]domain.FranchiseWallet, error) {
	wallets, err := s.repo.ListWallets(ctx, s.db, franchiseID)
	if err != nil {
		return nil, err
	}
	if wallets == nil {
		wallets = []domain.FranchiseWallet{}
	}
	return wallets, nil
}

func (s *Service) ListTransactions(ctx context.Context, walletID snowflake.ID, req domain.ListTransactionsRequest) (domain.ListWalletTransactionsResponse, error) {
	if _, err := s.Balance(ctx, walletID); err != nil {
		return domain.ListWalletTransactionsResponse{}, err
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListTransactions(ctx, s.db, walletID, page)
	if err != nil {
		return domain.ListWalletTransactionsResponse{}, err
	}

	items, pageInfo := pagination.Paginate(items, page.PageSize, func(t *domain.WalletTransaction) (string, time.Time) {
		return t.ID.String(), t.CreatedAt
	})
	out := make([]domain.WalletTransaction, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListWalletTransactionsResponse{PageInfo: pageInfo, Transactions: out}, nil
}

func (s *Service) BrandBalance(ctx context.Context, franchiserID snowflake.ID) (domain.BrandTreasury, error) {
	total, err := s.repo.BrandBalance(ctx, s.db, franchiserID)
	if err != nil {
		return domain.BrandTreasury{}, err
	}
	return domain.BrandTreasury{FranchiserID: franchiserID, Balance: total}, nil
}

func (s *Service) ListBrandTransactions(ctx context.Context, franchiserID snowflake.ID, req domain.ListTransactionsRequest) (domain.ListBrandTransactionsResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.ListBrandTransactions(ctx, s.db, franchiserID, page)
	if err != nil {
		return domain.ListBrandTransactionsResponse{}, err
	}

	items, pageInfo := pagination.Paginate(items, page.PageSize, func(t *domain.BrandTransaction) (string, time.Time) {
		return t.ID.String(), t.CreatedAt
	})
	out := make([]domain.BrandTransaction, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListBrandTransactionsResponse{PageInfo: pageInfo, Transactions: out}, nil
}

func (s *Service) newTransaction(wallet domain.FranchiseWallet, direction domain.Direction, amount decimal.Decimal, description, reference, key string) domain.WalletTransaction {
	return domain.WalletTransaction{
		ID:             s.genID.Generate(),
		WalletID:       wallet.ID,
		FranchiseID:    wallet.FranchiseID,
		Direction:      direction,
		Amount:         amount,
		NativeAmount:   toNative(amount, wallet.ExchangeRate),
		Description:    strings.TrimSpace(description),
		Reference:      strings.TrimSpace(reference),
		IdempotencyKey: optionalKey(key),
		CreatedAt:      s.clock.Now(),
	}
}

func toNative(usd, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return usd.DivRound(rate, nativeScale)
}

func optionalKey(key string) *string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return &key
}
