package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/franchisefund/internal/franchise/domain"
	lifecycledomain "github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	"github.com/smallbiznis/franchisefund/internal/testing/fixture"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFranchiserSlug(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()

	franchiser, err := env.Franchises.CreateFranchiser(ctx, domain.CreateFranchiserRequest{Name: "  Kopi Kenangan  "})
	require.NoError(t, err)
	assert.Equal(t, "Kopi Kenangan", franchiser.Name)
	assert.Equal(t, "kopi-kenangan", franchiser.Slug)

	_, err = env.Franchises.CreateFranchiser(ctx, domain.CreateFranchiserRequest{Name: "kopi kenangan"})
	require.ErrorIs(t, err, domain.ErrSlugTaken)

	_, err = env.Franchises.CreateFranchiser(ctx, domain.CreateFranchiserRequest{Name: " "})
	require.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestCreateFranchiseOpensFundingRound(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	acme := env.Franchiser(t, "Acme")

	created := env.Franchise(t, acme, "100000", "20000", "50000", "30000")
	assert.Equal(t, "acme-01", created.Franchise.Slug)
	assert.Equal(t, domain.StatusPending, created.Franchise.Status)
	assert.Equal(t, domain.StageFunding, created.Franchise.Stage)
	assert.Equal(t, created.Investment.ID, created.Franchise.InvestmentID)
	assert.Equal(t, created.Franchise.ID, created.Investment.FranchiseID)
	assert.True(t, created.Investment.TotalInvested.IsZero())

	current, err := env.Lifecycle.Current(ctx, created.Franchise.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageFunding, current.Stage)
	assert.Equal(t, lifecycledomain.SubStageRaising, current.SubStage)
	assert.Zero(t, current.Progress)

	escrow, err := env.Wallets.FindActiveEscrow(ctx, env.DB, created.Franchise.ID)
	require.NoError(t, err)
	assert.Equal(t, walletdomain.WalletKindEscrow, escrow.Kind)
	assert.Equal(t, "escrow-acme", escrow.Address)

	bySlug, err := env.Franchises.GetBySlug(ctx, "acme-01")
	require.NoError(t, err)
	assert.Equal(t, created.Franchise.ID, bySlug.ID)
}

func TestNextSlugContinuesNumbering(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	acme := env.Franchiser(t, "Acme")

	env.Franchise(t, acme, "1000", "200", "500", "300")
	env.Franchise(t, acme, "1000", "200", "500", "300")

	next, err := env.Franchises.NextSlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme-03", next)

	third := env.Franchise(t, acme, "1000", "200", "500", "300")
	assert.Equal(t, "acme-03", third.Franchise.Slug)

	other, err := env.Franchises.NextSlug(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, "acme-corp-01", other)
}

func TestCreateFranchiseValidation(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	acme := env.Franchiser(t, "Acme")

	base := func() domain.CreateFranchiseRequest {
		return domain.CreateFranchiseRequest{
			FranchiserID:    acme.ID,
			Name:            "Acme Central",
			TotalInvestment: decimal.NewFromInt(1000),
			FranchiseFee:    decimal.NewFromInt(200),
			SetupCost:       decimal.NewFromInt(500),
			WorkingCapital:  decimal.NewFromInt(300),
			SharePrice:      decimal.NewFromInt(10),
		}
	}

	cases := []struct {
		name   string
		mutate func(*domain.CreateFranchiseRequest)
		want   error
	}{
		{"missing franchiser", func(r *domain.CreateFranchiseRequest) { r.FranchiserID = 0 }, domain.ErrInvalidFranchiser},
		{"unknown franchiser", func(r *domain.CreateFranchiseRequest) { r.FranchiserID = 99 }, domain.ErrFranchiserNotFound},
		{"missing name", func(r *domain.CreateFranchiseRequest) { r.Name = "" }, domain.ErrInvalidName},
		{"zero total", func(r *domain.CreateFranchiseRequest) { r.TotalInvestment = decimal.Zero }, domain.ErrInvalidTotal},
		{"negative fee", func(r *domain.CreateFranchiseRequest) { r.FranchiseFee = decimal.NewFromInt(-1) }, domain.ErrNegativeComponent},
		{"unbalanced", func(r *domain.CreateFranchiseRequest) { r.WorkingCapital = decimal.NewFromInt(250) }, domain.ErrInvalidComponents},
		{"negative shares", func(r *domain.CreateFranchiseRequest) { r.SharesIssued = -1 }, domain.ErrInvalidShares},
		{"zero price", func(r *domain.CreateFranchiseRequest) { r.SharePrice = decimal.Zero }, domain.ErrInvalidSharePrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			tc.mutate(&req)
			_, err := env.Franchises.CreateFranchise(ctx, req)
			require.ErrorIs(t, err, tc.want)
		})
	}

	req := base()
	req.WorkingCapital = decimal.RequireFromString("300.005")
	_, err := env.Franchises.CreateFranchise(ctx, req)
	require.NoError(t, err, "differences within tolerance are accepted")
}

func TestListAndUpdateStatus(t *testing.T) {
	env := fixture.New(t)
	ctx := context.Background()
	acme := env.Franchiser(t, "Acme")
	first := env.Franchise(t, acme, "1000", "200", "500", "300")
	env.Franchise(t, acme, "1000", "200", "500", "300")
	env.Franchise(t, env.Franchiser(t, "Bolt"), "1000", "200", "500", "300")

	page, err := env.Franchises.List(ctx, domain.ListFranchiseRequest{FranchiserID: &acme.ID, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page.Franchises, 1)
	assert.True(t, page.HasMore)

	rest, err := env.Franchises.List(ctx, domain.ListFranchiseRequest{FranchiserID: &acme.ID, PageSize: 10, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, rest.Franchises, 1)
	assert.False(t, rest.HasMore)
	assert.NotEqual(t, page.Franchises[0].ID, rest.Franchises[0].ID)

	_, err = env.Franchises.List(ctx, domain.ListFranchiseRequest{Stage: "raising"})
	require.ErrorIs(t, err, domain.ErrInvalidStage)

	updated, err := env.Franchises.UpdateStatus(ctx, first.Franchise.ID, domain.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, updated.Status)
	assert.Equal(t, domain.StageFunding, updated.Stage)

	_, err = env.Franchises.UpdateStatus(ctx, first.Franchise.ID, "paused")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = env.Franchises.UpdateStatus(ctx, 12345, domain.StatusActive)
	require.ErrorIs(t, err, domain.ErrFranchiseNotFound)
}
