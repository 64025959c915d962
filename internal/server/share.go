package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	sharedomain "github.com/smallbiznis/franchisefund/internal/share/domain"
	"github.com/smallbiznis/franchisefund/pkg/db/pagination"
)

type purchaseSharesRequest struct {
	InvestorID    string          `json:"investor_id"`
	Shares        int64           `json:"shares"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ExternalRef   string          `json:"external_ref"`
}

func (r purchaseSharesRequest) toDomain(key string) sharedomain.PurchaseRequest {
	return sharedomain.PurchaseRequest{
		InvestorID:     strings.TrimSpace(r.InvestorID),
		Shares:         r.Shares,
		PricePerShare:  r.PricePerShare,
		TotalAmount:    r.TotalAmount,
		ExternalRef:    strings.TrimSpace(r.ExternalRef),
		IdempotencyKey: key,
	}
}

func (s *Server) PurchaseShares(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	var req purchaseSharesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if !s.allowPurchase(c, req.InvestorID) {
		return
	}

	purchase := req.toDomain(key)
	purchase.FranchiseID = id
	resp, err := s.shareSvc.Purchase(c.Request.Context(), purchase)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PurchaseSharesBySlug(c *gin.Context) {
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	var req purchaseSharesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if !s.allowPurchase(c, req.InvestorID) {
		return
	}

	resp, err := s.shareSvc.PurchaseBySlug(c.Request.Context(), strings.TrimSpace(c.Param("slug")), req.toDomain(key))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type refundShareRequest struct {
	ExternalRef string `json:"external_ref"`
}

func (s *Server) RefundShare(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	// body is optional
	var req refundShareRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.shareSvc.Refund(c.Request.Context(), sharedomain.RefundRequest{
		ShareID:        id,
		ExternalRef:    strings.TrimSpace(req.ExternalRef),
		IdempotencyKey: key,
		Reason:         sharedomain.RefundReasonRequested,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetShare(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.shareSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListFranchiseShares(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.shareSvc.ListByFranchise(c.Request.Context(), id, sharedomain.ListSharesRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvestorShares(c *gin.Context) {
	investorID := strings.TrimSpace(c.Param("investor_id"))

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.shareSvc.ListByInvestor(c.Request.Context(), investorID, sharedomain.ListSharesRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
