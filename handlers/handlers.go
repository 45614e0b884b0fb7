// Package handlers exposes the bot's status and observability endpoints.
package handlers

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/config"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/dex"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/syncer"
)

// Handler handles status HTTP requests.
type Handler struct {
	cfg         *config.Config
	metrics     *syncer.Metrics
	coordinator *syncer.Coordinator
	executor    *dex.Executor
}

// NewHandler creates a status handler.
func NewHandler(cfg *config.Config, metrics *syncer.Metrics, coordinator *syncer.Coordinator, executor *dex.Executor) *Handler {
	return &Handler{
		cfg:         cfg,
		metrics:     metrics,
		coordinator: coordinator,
		executor:    executor,
	}
}

// Register attaches all routes to the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/stats", h.GetStats)
	r.GET("/api/orders", h.GetOrders)
	r.GET("/api/balance", h.GetBalance)
	r.GET("/api/price/:token", h.GetPrice)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"network": h.cfg.ChainName,
		"target":  h.cfg.TargetWallet,
		"mode":    h.cfg.Mode,
	})
}

// GetStats returns the pipeline counters.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// GetOrders returns the recent mirror orders, newest last.
func (h *Handler) GetOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": h.coordinator.RecentOrders()})
}

// GetBalance returns the operator's native balance, or a token balance
// when ?token= is given.
func (h *Handler) GetBalance(c *gin.Context) {
	ctx := c.Request.Context()
	operator := h.executor.Operator()

	token := strings.ToLower(c.Query("token"))
	if token == "" {
		balance, err := h.executor.NativeBalance(ctx)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"wallet":  strings.ToLower(operator.Hex()),
			"token":   "native",
			"balance": balance.String(),
		})
		return
	}

	if !common.IsHexAddress(token) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token address"})
		return
	}
	balance, err := h.executor.Tokens().BalanceOf(ctx, common.HexToAddress(token), operator)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet":  strings.ToLower(operator.Hex()),
		"token":   token,
		"balance": balance.String(),
	})
}

// GetPrice returns the mid-price of one base-asset unit in the given
// token, derived from current pair reserves.
func (h *Handler) GetPrice(c *gin.Context) {
	token := c.Param("token")
	if !common.IsHexAddress(token) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token address"})
		return
	}

	price, err := h.executor.Quoter().MidPrice(c.Request.Context(),
		common.HexToAddress(h.cfg.BaseAssetAddress), common.HexToAddress(token))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"base":  h.cfg.BaseAssetAddress,
		"token": strings.ToLower(token),
		"price": price.Text('f', 8),
	})
}
