package analysis

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletscope/internal/chain"
	"github.com/mbd888/walletscope/internal/intel"
	"github.com/mbd888/walletscope/internal/pagination"
	"github.com/mbd888/walletscope/internal/validation"
)

// Handler provides HTTP endpoints for wallet analysis
type Handler struct {
	svc *Service
}

// NewHandler creates a new analysis handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up analysis endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address/report", h.GetReport)
	r.GET("/wallets/:address/graph", h.GetGraph)
	r.GET("/wallets/:address/history", h.GetHistory)
	r.GET("/wallets/:address/assessments", h.GetAssessments)
	r.GET("/threat/:address", h.GetThreat)
	r.POST("/threat/batch", h.BatchThreat)
}

// GetReport runs a full analysis for a wallet.
// GET /v1/wallets/:address/report
func (h *Handler) GetReport(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	report, err := h.svc.AnalyzeWallet(c.Request.Context(), address)
	if err != nil {
		h.writeAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetGraph returns the transaction graph and clusters only.
// GET /v1/wallets/:address/graph
func (h *Handler) GetGraph(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	view, err := h.svc.Graph(c.Request.Context(), address)
	if err != nil {
		h.writeAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetHistory returns stored reports for a wallet, newest first.
// GET /v1/wallets/:address/history?limit=&cursor=
func (h *Handler) GetHistory(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	if !h.svc.HasStore() {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "not_available",
			"message": "Report history is not available without a configured store",
		})
		return
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 100 {
				limit = 100
			}
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is malformed",
		})
		return
	}

	// Fetch one extra row to detect whether another page exists.
	reports, err := h.svc.History(c.Request.Context(), address, limit+1, cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to query report history",
		})
		return
	}

	page, next, hasMore := pagination.ComputePage(reports, limit, func(r *Report) (time.Time, string) {
		return r.GeneratedAt, r.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"address":    validation.ChecksumAddress(address),
		"reports":    page,
		"count":      len(page),
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

// GetAssessments returns the recorded scoring audit trail for a wallet,
// newest first. Every analysis records one assessment.
// GET /v1/wallets/:address/assessments?limit=
func (h *Handler) GetAssessments(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	if !h.svc.HasAssessmentStore() {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "not_available",
			"message": "Assessment history is not available without a configured store",
		})
		return
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 100 {
				limit = 100
			}
		}
	}

	assessments, err := h.svc.Assessments(c.Request.Context(), address, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to query assessment history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":     validation.ChecksumAddress(address),
		"assessments": assessments,
		"count":       len(assessments),
	})
}

// GetThreat returns the threat-intel verdict for a single address.
// GET /v1/threat/:address
func (h *Handler) GetThreat(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))
	c.JSON(http.StatusOK, h.svc.Threat(c.Request.Context(), address))
}

// BatchRequest is the payload for batch threat lookups.
type BatchRequest struct {
	Addresses []string `json:"addresses"`
}

// BatchThreat returns threat verdicts for multiple addresses.
// POST /v1/threat/batch
func (h *Handler) BatchThreat(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'addresses' array",
		})
		return
	}

	if len(req.Addresses) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "At least one address is required",
		})
		return
	}
	if len(req.Addresses) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "too_many_addresses",
			"message": "Maximum 100 addresses per batch request",
		})
		return
	}

	var verdicts []*intel.Verdict
	var invalid []string
	for _, addr := range req.Addresses {
		addr = validation.SanitizeAddress(addr)
		if !validation.IsValidEthAddress(addr) {
			invalid = append(invalid, addr)
			continue
		}
		verdicts = append(verdicts, h.svc.Threat(c.Request.Context(), addr))
	}

	c.JSON(http.StatusOK, gin.H{
		"verdicts": verdicts,
		"count":    len(verdicts),
		"invalid":  invalid,
	})
}

// writeAnalysisError maps pipeline errors to HTTP responses.
func (h *Handler) writeAnalysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chain.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Address is not a valid wallet address",
		})
	case errors.Is(err, chain.ErrUpstream):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "indexer_unavailable",
			"message": "Upstream transaction indexer request failed",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "analysis_failed",
			"message": "Wallet analysis failed",
		})
	}
}
