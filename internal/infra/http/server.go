package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/config"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/usecase"
)

const serviceName = "signet-core-api"

type Server struct {
	cfg     config.Config
	r       *gin.Engine
	logger  *slog.Logger
	metrics *Metrics

	submitUC *usecase.SubmitExchange
	chainUC  *usecase.GetChain
	exportUC *usecase.ExportChain
	jwksUC   *usecase.GetJWKS

	clientQuota         domain.ClientQuota
	rateLimitFailClosed bool

	closers []func() error
}

type ServerDeps struct {
	Submit      *usecase.SubmitExchange
	Chain       *usecase.GetChain
	Export      *usecase.ExportChain
	JWKS        *usecase.GetJWKS
	Quota       domain.ClientQuota
	Metrics     *Metrics
	Logger      *slog.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:                 cfg,
		r:                   r,
		logger:              deps.Logger,
		metrics:             deps.Metrics,
		submitUC:            deps.Submit,
		chainUC:             deps.Chain,
		exportUC:            deps.Export,
		jwksUC:              deps.JWKS,
		clientQuota:         deps.Quota,
		rateLimitFailClosed: cfg.RateLimitFailClosed,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealthz)
	s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	s.r.GET("/.well-known/jwks.json", s.handleJWKS)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/exchange", s.quota(routeExchange), s.handleExchange)
		v1.GET("/receipts/chain/:trace_id", s.handleChain)
		v1.GET("/receipts/export/:trace_id", s.handleExport)

		v1.GET("/compliance/dashboard", s.handleComplianceDashboard)
		v1.GET("/compliance/annex4/:trace_id", s.handleAnnex4)
		v1.GET("/compliance/pmm/:trace_id", s.handlePMM)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close releases files and connections opened by NewServer.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
