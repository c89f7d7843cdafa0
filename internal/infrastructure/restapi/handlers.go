package restapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WalletHandler serves the wallet data endpoints.
type WalletHandler struct {
	svc    port.WalletService
	logger *zap.Logger
}

func NewWalletHandler(svc port.WalletService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{svc: svc, logger: logger.Named("WalletHandler")}
}

// PricesRequest is the body of POST /api/v1/prices.
type PricesRequest struct {
	Tokens []entity.TokenRef `json:"tokens"`
}

func (h *WalletHandler) GetNativeBalance(c *gin.Context) {
	balance, err := h.svc.GetNativeBalance(c.Request.Context(), c.Param("chain"), c.Param("address"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *WalletHandler) GetTokens(c *gin.Context) {
	excludeSpam, err := queryBool(c, "exclude_spam")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	query := entity.TokenQuery{
		ExcludeSpam:    excludeSpam,
		TokenAddresses: utils.SplitCSV(c.Query("token_addresses")),
	}
	tokens, err := h.svc.GetTokens(c.Request.Context(), c.Param("chain"), c.Param("address"), query)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if tokens == nil {
		tokens = []entity.TokenBalance{}
	}
	c.JSON(http.StatusOK, gin.H{"result": tokens})
}

func (h *WalletHandler) GetNFTs(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	excludeSpam, err := queryBool(c, "exclude_spam")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	query := entity.NFTQuery{Limit: limit, Cursor: c.Query("cursor"), ExcludeSpam: excludeSpam}
	page, err := h.svc.GetNFTs(c.Request.Context(), c.Param("chain"), c.Param("address"), query)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *WalletHandler) GetTransactions(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	fromBlock, err := queryUint(c, "from_block")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	toBlock, err := queryUint(c, "to_block")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	query := entity.TxQuery{Limit: limit, Cursor: c.Query("cursor"), FromBlock: fromBlock, ToBlock: toBlock}
	page, err := h.svc.GetTransactions(c.Request.Context(), c.Param("chain"), c.Param("address"), query)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *WalletHandler) GetTokenPrice(c *gin.Context) {
	price, err := h.svc.GetTokenPrice(c.Request.Context(), c.Param("chain"), c.Param("address"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if price == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, NewErrorResponse(ErrorCodeNotFound, "no price available for token"))
		return
	}
	c.JSON(http.StatusOK, price)
}

func (h *WalletHandler) PostPrices(c *gin.Context) {
	var req PricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse(ErrorCodeMalformedJSON, err.Error()))
		return
	}
	if len(req.Tokens) == 0 {
		writeError(c, h.logger, fmt.Errorf("%w: tokens must not be empty", entity.ErrInvalidRequest))
		return
	}
	prices, err := h.svc.GetTokenPrices(c.Request.Context(), req.Tokens)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

func (h *WalletHandler) GetSnapshot(c *gin.Context) {
	snapshot, err := h.svc.GetSnapshot(c.Request.Context(), c.Param("address"), utils.SplitCSV(c.Query("chains")))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *WalletHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", entity.ErrInvalidRequest, key)
	}
	return v, nil
}

func queryUint(c *gin.Context, key string) (uint64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", entity.ErrInvalidRequest, key)
	}
	return v, nil
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", entity.ErrInvalidRequest, key)
	}
	return v, nil
}
