package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	chainingdomain "github.com/anoteng/regnskap/internal/chaining/domain"
	"github.com/anoteng/regnskap/internal/cloudmetrics"
	"github.com/anoteng/regnskap/internal/config"
	csvimportdomain "github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/anoteng/regnskap/internal/ledger"
	"github.com/anoteng/regnskap/internal/observability"
	"github.com/anoteng/regnskap/internal/ratelimit"
	obsmiddleware "github.com/anoteng/regnskap/internal/observability/logger"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	obstracing "github.com/anoteng/regnskap/internal/observability/tracing"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	ledger.Module,
	cloudmetrics.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Logger:          log,
		Debug:           obsCfg.Debug(),
		UserHeader:      HeaderUserID,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
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
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.String("addr", addr), zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	accountSvc     accountdomain.Service
	bankAccountSvc bankaccountdomain.Service
	transactionSvc transactiondomain.Service
	chainingSvc    chainingdomain.Service
	csvImportSvc   csvimportdomain.Service
	bankSyncSvc    banksyncdomain.Service
	auditSvc       auditdomain.Service
	syncLimiter    *ratelimit.SyncLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	AccountSvc     accountdomain.Service
	BankAccountSvc bankaccountdomain.Service
	TransactionSvc transactiondomain.Service
	ChainingSvc    chainingdomain.Service
	CSVImportSvc   csvimportdomain.Service
	BankSyncSvc    banksyncdomain.Service
	AuditSvc       auditdomain.Service
	SyncLimiter    *ratelimit.SyncLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		accountSvc:     p.AccountSvc,
		bankAccountSvc: p.BankAccountSvc,
		transactionSvc: p.TransactionSvc,
		chainingSvc:    p.ChainingSvc,
		csvImportSvc:   p.CSVImportSvc,
		bankSyncSvc:    p.BankSyncSvc,
		auditSvc:       p.AuditSvc,
		syncLimiter:    p.SyncLimiter,
	}
}

// RegisterRoutes mounts the public catalogue routes and every
// ledger-scoped route.
func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")
	api.GET("/chart-templates", s.ListChartTemplates)
	api.GET("/csv-presets", s.ListCSVPresets)
	api.GET("/bank-providers", s.ListBankProviders)
	api.GET("/bank-connections/callback", s.BankConnectionCallback)

	l := api.Group("/ledgers/:ledgerId", s.LedgerContext())

	l.GET("/accounts", s.ListAccounts)
	l.POST("/accounts", s.CreateAccount)
	l.POST("/accounts/apply-template", s.ApplyChartTemplate)
	l.GET("/accounts/:id", s.GetAccount)
	l.PATCH("/accounts/:id", s.UpdateAccount)
	l.DELETE("/accounts/:id", s.DeleteAccount)
	l.POST("/accounts/:id/deactivate", s.DeactivateAccount)

	l.GET("/bank-accounts", s.ListBankAccounts)
	l.POST("/bank-accounts", s.CreateBankAccount)
	l.GET("/bank-accounts/:id", s.GetBankAccount)
	l.DELETE("/bank-accounts/:id", s.DeactivateBankAccount)

	l.GET("/transactions", s.ListTransactions)
	l.POST("/transactions", s.RequireUser(), s.CreateTransaction)
	l.GET("/transactions/queue", s.TransactionQueue)
	l.POST("/transactions/queue/post-all", s.PostAllDrafts)
	l.POST("/transactions/validate", s.ValidateTransaction)
	l.GET("/transactions/chain-suggestions", s.ChainSuggestions)
	l.POST("/transactions/chain", s.ChainTransactions)
	l.GET("/transactions/:id", s.GetTransaction)
	l.PUT("/transactions/:id", s.UpdateTransaction)
	l.DELETE("/transactions/:id", s.DeleteTransaction)
	l.POST("/transactions/:id/post", s.PostTransaction)
	l.POST("/transactions/:id/reconcile", s.ReconcileTransaction)
	l.POST("/transactions/:id/reverse", s.RequireUser(), s.ReverseTransaction)

	l.GET("/csv-mappings", s.ListCSVMappings)
	l.POST("/csv-mappings", s.CreateCSVMapping)
	l.GET("/csv-mappings/:id", s.GetCSVMapping)
	l.PUT("/csv-mappings/:id", s.UpdateCSVMapping)
	l.DELETE("/csv-mappings/:id", s.DeleteCSVMapping)
	l.POST("/csv/preview", s.PreviewCSV)
	l.POST("/csv/import/:bankAccountId", s.RequireUser(), s.ImportCSV)
	l.GET("/csv/import-logs", s.ListImportLogs)

	l.POST("/bank-connections/connect", s.RequireUser(), s.StartBankConnection)
	l.GET("/bank-connections", s.ListBankConnections)
	l.GET("/bank-connections/:id", s.GetBankConnection)
	l.PATCH("/bank-connections/:id", s.UpdateBankConnection)
	l.DELETE("/bank-connections/:id", s.DisconnectBankConnection)
	l.POST("/bank-connections/:id/sync", s.SyncBankConnection)
	l.GET("/bank-connections/:id/logs", s.ListBankSyncLogs)
	l.GET("/bank-connections/:id/staged", s.ListStagedTransactions)
	l.POST("/bank-connections/:id/staged/:stagedId/ignore", s.IgnoreStagedTransaction)

	l.GET("/audit-logs", s.ListAuditLogs)
}
