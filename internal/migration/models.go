package migration

import (
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	lifecycledomain "github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	sharedomain "github.com/smallbiznis/franchisefund/internal/share/domain"
	tokendomain "github.com/smallbiznis/franchisefund/internal/token/domain"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
)

// Models lists every persisted model, for databases migrated by gorm rather
// than the embedded SQL.
func Models() []any {
	return []any{
		&franchisedomain.Franchiser{},
		&franchisedomain.Franchise{},
		&investmentdomain.Investment{},
		&sharedomain.FranchiseShare{},
		&lifecycledomain.StageRecord{},
		&lifecycledomain.LaunchTimeline{},
		&walletdomain.FranchiseWallet{},
		&walletdomain.WalletTransaction{},
		&walletdomain.BrandTransaction{},
		&tokendomain.Operation{},
	}
}
