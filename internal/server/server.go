package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/franchisefund/internal/config"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	investmentdomain "github.com/smallbiznis/franchisefund/internal/investment/domain"
	lifecycledomain "github.com/smallbiznis/franchisefund/internal/lifecycle/domain"
	"github.com/smallbiznis/franchisefund/internal/observability"
	obsmiddleware "github.com/smallbiznis/franchisefund/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/franchisefund/internal/observability/metrics"
	obstracing "github.com/smallbiznis/franchisefund/internal/observability/tracing"
	"github.com/smallbiznis/franchisefund/internal/ratelimit"
	sharedomain "github.com/smallbiznis/franchisefund/internal/share/domain"
	tokendomain "github.com/smallbiznis/franchisefund/internal/token/domain"
	walletdomain "github.com/smallbiznis/franchisefund/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(httpMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	franchiseSvc  franchisedomain.Service
	investmentSvc investmentdomain.Service
	shareSvc      sharedomain.Service
	lifecycleSvc  lifecycledomain.Service
	walletSvc     walletdomain.Service
	tokenSvc      tokendomain.Service

	purchaseLimiter *ratelimit.PurchaseLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	FranchiseSvc  franchisedomain.Service
	InvestmentSvc investmentdomain.Service
	ShareSvc      sharedomain.Service
	LifecycleSvc  lifecycledomain.Service
	WalletSvc     walletdomain.Service
	TokenSvc      tokendomain.Service

	PurchaseLimiter *ratelimit.PurchaseLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		franchiseSvc:  p.FranchiseSvc,
		investmentSvc: p.InvestmentSvc,
		shareSvc:      p.ShareSvc,
		lifecycleSvc:  p.LifecycleSvc,
		walletSvc:     p.WalletSvc,
		tokenSvc:      p.TokenSvc,

		purchaseLimiter: p.PurchaseLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	// -------- Franchisers --------
	api.POST("/franchisers", s.CreateFranchiser)
	api.GET("/franchisers/:id", s.GetFranchiser)
	api.GET("/franchisers/:id/treasury", s.GetBrandTreasury)
	api.GET("/franchisers/:id/brand-transactions", s.ListBrandTransactions)
	api.GET("/franchisers/:id/next-slug", s.NextFranchiseSlug)

	// -------- Franchises --------
	api.POST("/franchises", s.CreateFranchise)
	api.GET("/franchises", s.ListFranchises)
	api.GET("/franchises/:id", s.GetFranchiseByID)
	api.GET("/franchises/slug/:slug", s.GetFranchiseBySlug)
	api.PATCH("/franchises/:id/status", s.UpdateFranchiseStatus)
	api.GET("/franchises/:id/funding", s.GetFundingProgress)

	// -------- Shares --------
	api.POST("/franchises/:id/shares", s.PurchaseShares)
	api.POST("/franchises/slug/:slug/shares", s.PurchaseSharesBySlug)
	api.GET("/franchises/:id/shares", s.ListFranchiseShares)
	api.GET("/investors/:investor_id/shares", s.ListInvestorShares)
	api.GET("/shares/:id", s.GetShare)
	api.POST("/shares/:id/refund", s.RefundShare)

	// -------- Lifecycle --------
	api.GET("/franchises/:id/stages", s.ListStages)
	api.GET("/franchises/:id/stages/current", s.GetCurrentStage)
	api.GET("/franchises/:id/timeline", s.GetLaunchTimeline)
	api.POST("/franchises/:id/ongoing", s.MarkOngoing)
	api.PATCH("/franchises/:id/sub-stage", s.UpdateSubStage)
	api.POST("/franchises/:id/closure-check", s.CheckClosure)
	api.POST("/franchises/:id/funding-check", s.EvaluateFunding)

	// -------- Wallets --------
	api.GET("/franchises/:id/wallets", s.ListWallets)
	api.GET("/wallets/:id", s.GetWalletBalance)
	api.GET("/wallets/:id/transactions", s.ListWalletTransactions)
	api.POST("/wallets/:id/credit", s.CreditWallet)
	api.POST("/wallets/:id/debit", s.DebitWallet)

	// -------- Token operations --------
	api.GET("/token-operations/:id", s.GetTokenOperation)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
