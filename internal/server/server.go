package server

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/paysettle/internal/buyer"
	"github.com/smallbiznis/paysettle/internal/config"
	"github.com/smallbiznis/paysettle/internal/events"
	"github.com/smallbiznis/paysettle/internal/gateway"
	"github.com/smallbiznis/paysettle/internal/observability"
	obsmiddleware "github.com/smallbiznis/paysettle/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paysettle/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paysettle/internal/observability/tracing"
	"github.com/smallbiznis/paysettle/internal/order"
	orderdomain "github.com/smallbiznis/paysettle/internal/order/domain"
	"github.com/smallbiznis/paysettle/internal/payment"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
	"github.com/smallbiznis/paysettle/internal/purchasable"
	"github.com/smallbiznis/paysettle/internal/ratelimit"
	"github.com/smallbiznis/paysettle/internal/receipt"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Services wires the domain services without the HTTP surface.
var Services = fx.Options(
	buyer.Module,
	purchasable.Module,
	order.Module,
	gateway.Module,
	events.Module,
	ratelimit.Module,
	payment.Module,
	receipt.Module,
)

var Module = fx.Module("http.server",
	Services,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	orderSvc   orderdomain.Service
	paymentSvc paymentdomain.Service
	receiptSvc *receipt.Service
	limiter    *ratelimit.Limiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	OrderSvc   orderdomain.Service
	PaymentSvc paymentdomain.Service
	ReceiptSvc *receipt.Service     `optional:"true"`
	Limiter    *ratelimit.Limiter   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http"),
		orderSvc:   p.OrderSvc,
		paymentSvc: p.PaymentSvc,
		receiptSvc: p.ReceiptSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerOrderRoutes()
	svc.registerPaymentRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerOrderRoutes() {
	orders := s.engine.Group("/orders")

	orders.POST("", s.CreateOrder)
	orders.GET("/:id", s.GetOrder)
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/payments")

	payments.POST("/checkout", s.RateLimit(ratelimit.EndpointCheckout), s.CreateCheckout)

	// -------- Gateway callbacks --------
	payments.POST("/webhook", s.HandlePaymentWebhook)
	payments.GET("/webhook", s.VerifyPaymentWebhook)
	payments.GET("/return", s.HandlePaymentReturn)
	payments.GET("/cancel", s.HandlePaymentCancel)

	code := payments.Group("/:orderCode", OrderCodeParam())
	{
		code.GET("", s.GetPayment)
		code.GET("/events", s.ListPaymentEvents)
		code.GET("/receipt", s.GetPaymentReceipt)
		code.POST("/sync", s.RateLimit(ratelimit.EndpointSync), s.SyncPayment)
	}
}
