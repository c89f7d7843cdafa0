package restapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter wires the middleware stack and every route of the API.
// An empty allowedOrigins allows any origin.
func SetupRouter(wallets *WalletHandler, stream *SnapshotStream, allowedOrigins []string, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader}
	router.Use(cors.New(corsConfig))
	router.Use(ZapLoggerMiddleware(logger))
	router.Use(gin.Recovery())

	router.GET("/healthz", wallets.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		wallet := v1.Group("/chains/:chain/wallets/:address")
		wallet.GET("/native", wallets.GetNativeBalance)
		wallet.GET("/tokens", wallets.GetTokens)
		wallet.GET("/nfts", wallets.GetNFTs)
		wallet.GET("/transactions", wallets.GetTransactions)

		v1.GET("/chains/:chain/tokens/:address/price", wallets.GetTokenPrice)
		v1.POST("/prices", wallets.PostPrices)
		v1.GET("/wallets/:address/snapshot", wallets.GetSnapshot)
		v1.GET("/ws/snapshots/:address", stream.Serve)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, NewErrorResponse(ErrorCodeNotFound, "route not found"))
	})
	return router
}
