package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"epgviewer/internal/cache"
	"epgviewer/internal/mirror"
)

// Server bundles the pipeline state an HTTP handler needs: the settings
// store, the mirror store backing every fetch, the parsed-schedule cache,
// and the prewarm scheduler. One Server serves the whole HTTP surface.
type Server struct {
	settings      *SettingsStore
	mirror        *mirror.Store
	scheduleCache *cache.Cache
	prewarm       *PrewarmScheduler
	startedAt     time.Time
}

// NewServer wires the four pipeline dependencies into one Server.
func NewServer(settings *SettingsStore, mirrorStore *mirror.Store, scheduleCache *cache.Cache, prewarm *PrewarmScheduler) *Server {
	return &Server{
		settings:      settings,
		mirror:        mirrorStore,
		scheduleCache: scheduleCache,
		prewarm:       prewarm,
		startedAt:     time.Now(),
	}
}

// Handler builds the routed, middleware-wrapped http.Handler for this
// server: panic recovery, security headers, then otelhttp instrumentation,
// wrapping a mux covering this repo's JSON+XMLTV surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, fn func(http.ResponseWriter, *http.Request)) {
		mux.Handle(pattern, withRouteTag(http.HandlerFunc(fn)))
	}

	handle("GET /healthz", s.handleHealthz)
	handle("GET /api/channels", s.handleChannels)
	handle("GET /api/epg", s.handleEPG)
	handle("GET /api/epg/channel", s.handleEPGChannel)
	handle("GET /epg.xml.gz", s.handleExportGz)
	handle("GET /api/export/epg.xml.gz", s.handleExportGz)
	handle("GET /epg.xml", s.handleExportXML)
	handle("GET /api/export/epg.xml", s.handleExportXML)
	handle("POST /api/export/prewarm", s.handlePrewarm)
	handle("GET /api/export/status", s.handleExportStatus)
	handle("GET /api/epg/export", s.handleExportByFingerprint)
	handle("GET /api/settings", s.handleSettingsGet)
	handle("POST /api/settings", s.handleSettingsPost)
	handle("GET /api/sources", s.handleSourcesGet)
	handle("POST /api/sources", s.handleSourcesPost)
	handle("DELETE /api/sources/{id}", s.handleSourceDelete)
	handle("POST /api/sources/{id}/rescan", s.handleSourceRescan)
	handle("GET /api/sources/{id}/channels", s.handleSourceChannels)
	handle("GET /api/mappings", s.handleMappingsGet)
	handle("POST /api/mappings", s.handleMappingsPost)

	handler := panicMiddleware(mux)
	handler = securityHeadersMiddleware(handler)
	handler = otelhttp.NewHandler(handler, "/")
	return handler
}

// Run starts an HTTP server on addr and blocks until ctx is cancelled, then
// gives in-flight requests 10 seconds to finish before returning.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		showInfo("webserver", fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		showInfo("webserver", "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func withRouteTag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := r.Pattern; route != "" {
			if labeler, ok := otelhttp.LabelerFromContext(r.Context()); ok {
				labeler.Add(attribute.String("http.route", route))
			}
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("http.route", route))
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func panicMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				span := trace.SpanFromContext(r.Context())
				var panicErr error
				switch x := rec.(type) {
				case error:
					panicErr = x
				default:
					panicErr = fmt.Errorf("panic: %v", x)
				}
				span.RecordError(panicErr)
				span.SetStatus(codes.Error, panicErr.Error())
				ShowError("webserver", panicErr)
				httpStatusError(w, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("webserver").Start(ctx, name)
}
