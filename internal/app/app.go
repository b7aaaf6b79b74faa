package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/bianshufei/meetnow/internal/chat"
	"github.com/bianshufei/meetnow/internal/confirm"
	"github.com/bianshufei/meetnow/internal/handler"
	"github.com/bianshufei/meetnow/internal/relay"
	"github.com/bianshufei/meetnow/internal/store"
	"github.com/bianshufei/meetnow/pkg/health"
	"github.com/bianshufei/meetnow/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// Order store + event relay. The store is constructed explicitly and
	// handed to everything that needs it; nothing reaches for a global.
	events := relay.New()
	st := store.New(store.WithNotifier(events))

	if cfg.SnapshotPath != "" {
		if err := st.LoadFile(cfg.SnapshotPath); err != nil {
			return errors.Wrap(err, "load snapshot")
		}
		lg.Info("Snapshot loaded", zap.String("path", cfg.SnapshotPath), zap.Int("orders", st.Len()))
	}

	// Confirmation protocol. A direct claim cancels any outstanding
	// handshake on the order, so the two pending→in_progress paths never
	// race.
	proto := confirm.New(st)
	st.SetTakeHook(proto.Drop)

	// Chat with simulated delivery.
	transport := chat.NewSimTransport(cfg.Chat.SendLatency, cfg.Chat.FailEvery)
	chatSvc := chat.NewService(transport, proto, chat.WithMaxRetries(cfg.Chat.MaxRetries))

	// Health service.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.SetReady(true)

	h := handler.New(st, proto, chatSvc, events)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// WriteTimeout stays zero: /api/events holds SSE streams open.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "X-User-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("meetnow-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: stop taking traffic, drain, stop, then persist.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}

		if cfg.SnapshotPath != "" {
			if err := st.SaveFile(cfg.SnapshotPath); err != nil {
				lg.Error("Snapshot save failed", zap.Error(err))
			} else {
				lg.Info("Snapshot saved", zap.String("path", cfg.SnapshotPath), zap.Int("orders", st.Len()))
			}
		}
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
