package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

const readyTimeout = 2 * time.Second

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type HandlerOptions struct {
	AllowedOrigins []string
	// Ready maps a dependency name to its readiness check.
	Ready map[string]Check
}

// NewHandler serves /healthz, /readyz and the per-business event socket at
// /ws/businesses/:businessID.
func NewHandler(hub *Hub, opts HandlerOptions, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "realtime.http"))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(origins, r.Header.Get("Origin")) },
	}

	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.GET("/readyz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		code := http.StatusOK
		results := make(map[string]string, len(opts.Ready))
		for name, check := range opts.Ready {
			if err := check(ctx); err != nil {
				log.Warn("readiness check failed", slog.String("check", name), slog.Any("err", err))
				results[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, code, results)
	})
	router.GET("/ws/businesses/:businessID", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		businessID, err := uuid.Parse(ps.ByName("businessID"))
		if err != nil {
			http.Error(w, "business id must be a UUID", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			log.Debug("websocket upgrade failed", slog.Any("err", err))
			return
		}
		log.Debug("websocket connected", slog.String("business_id", businessID.String()))
		hub.serve(conn, businessID.String())
	})

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(router)
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
