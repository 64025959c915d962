package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
)

type createFranchiserRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) CreateFranchiser(c *gin.Context) {
	var req createFranchiserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.franchiseSvc.CreateFranchiser(c.Request.Context(), franchisedomain.CreateFranchiserRequest{
		Name:     strings.TrimSpace(req.Name),
		Metadata: req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetFranchiser(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.franchiseSvc.GetFranchiser(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) NextFranchiseSlug(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	franchiser, err := s.franchiseSvc.GetFranchiser(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	next, err := s.franchiseSvc.NextSlug(c.Request.Context(), franchiser.Slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"slug": next}})
}

type createFranchiseRequest struct {
	FranchiserID    string          `json:"franchiser_id"`
	LocationID      string          `json:"location_id"`
	Name            string          `json:"name"`
	EscrowAddress   string          `json:"escrow_address"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	FranchiseFee    decimal.Decimal `json:"franchise_fee"`
	SetupCost       decimal.Decimal `json:"setup_cost"`
	WorkingCapital  decimal.Decimal `json:"working_capital"`
	SharesIssued    int64           `json:"shares_issued"`
	SharePrice      decimal.Decimal `json:"share_price"`
	Metadata        map[string]any  `json:"metadata"`
}

func (s *Server) CreateFranchise(c *gin.Context) {
	var req createFranchiseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	franchiserID, err := parseOptionalSnowflakeID(req.FranchiserID)
	if err != nil || franchiserID == nil {
		AbortWithError(c, newValidationError("franchiser_id", "invalid_franchiser_id", "invalid franchiser_id"))
		return
	}

	resp, err := s.franchiseSvc.CreateFranchise(c.Request.Context(), franchisedomain.CreateFranchiseRequest{
		FranchiserID:    *franchiserID,
		LocationID:      strings.TrimSpace(req.LocationID),
		Name:            strings.TrimSpace(req.Name),
		EscrowAddress:   strings.TrimSpace(req.EscrowAddress),
		TotalInvestment: req.TotalInvestment,
		FranchiseFee:    req.FranchiseFee,
		SetupCost:       req.SetupCost,
		WorkingCapital:  req.WorkingCapital,
		SharesIssued:    req.SharesIssued,
		SharePrice:      req.SharePrice,
		Metadata:        req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListFranchises(c *gin.Context) {
	var query struct {
		pagination.Pagination
		FranchiserID string `form:"franchiser_id"`
		Stage        string `form:"stage"`
		Status       string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	franchiserID, err := parseOptionalSnowflakeID(query.FranchiserID)
	if err != nil {
		AbortWithError(c, newValidationError("franchiser_id", "invalid_franchiser_id", "invalid franchiser_id"))
		return
	}

	resp, err := s.franchiseSvc.List(c.Request.Context(), franchisedomain.ListFranchiseRequest{
		PageToken:    query.PageToken,
		PageSize:     int32(query.PageSize),
		FranchiserID: franchiserID,
		Stage:        franchisedomain.Stage(strings.ToLower(strings.TrimSpace(query.Stage))),
		Status:       franchisedomain.Status(strings.ToLower(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetFranchiseByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.franchiseSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetFranchiseBySlug(c *gin.Context) {
	resp, err := s.franchiseSvc.GetBySlug(c.Request.Context(), strings.TrimSpace(c.Param("slug")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateFranchiseStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateFranchiseStatus(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateFranchiseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status := franchisedomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	resp, err := s.franchiseSvc.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetFundingProgress(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.investmentSvc.FundingProgress(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
