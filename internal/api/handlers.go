package api

import (
	"net/http"
	"strconv"
	"time"

	"ig-gateway/internal/symbols"

	"github.com/gin-gonic/gin"
)

func (s *Server) getStatus(c *gin.Context) {
	balance, syncedAt := s.Gateway.CashBalance()
	c.JSON(http.StatusOK, gin.H{
		"link":        s.Gateway.State().String(),
		"demo":        s.Meta.Demo,
		"account_id":  s.Meta.AccountID,
		"version":     s.Meta.Version,
		"open_orders": len(s.Gateway.OpenOrders()),
		"balance":     balance,
		"synced_at":   syncedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

func (s *Server) getOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	journaled, err := s.DB.ListOrders(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"open":      s.Gateway.OpenOrders(),
		"journaled": journaled,
	})
}

func (s *Server) getOrderFills(c *gin.Context) {
	fills, err := s.DB.ListFillsByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills})
}

func (s *Server) getPositions(c *gin.Context) {
	holdings, err := s.Gateway.Holdings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": holdings})
}

func (s *Server) getBalance(c *gin.Context) {
	balance, syncedAt := s.Gateway.CashBalance()
	c.JSON(http.StatusOK, gin.H{
		"balance":   balance,
		"synced_at": syncedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) searchMarkets(c *gin.Context) {
	term := c.Query("search")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "MISSING_SEARCH_TERM",
			"error": "search query parameter is required",
		})
		return
	}
	markets, err := s.Gateway.LookupSymbols(c.Request.Context(), term)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": markets})
}

func (s *Server) addMapping(c *gin.Context) {
	var req struct {
		Ticker string `json:"ticker"`
		Epic   string `json:"epic"`
		Class  string `json:"class"`
	}
	if err := c.BindJSON(&req); err != nil || req.Ticker == "" || req.Epic == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "ticker and epic are required",
		})
		return
	}

	class := symbols.AssetClass(req.Class)
	if req.Class == "" {
		class = symbols.ClassUnknown
	}
	s.Gateway.AddMapping(req.Ticker, req.Epic, class)
	c.JSON(http.StatusCreated, gin.H{
		"ticker": req.Ticker,
		"epic":   req.Epic,
	})
}
