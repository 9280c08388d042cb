package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"readingsurvey/internal/logger"
	"readingsurvey/internal/service"
	"readingsurvey/internal/transport/rest/handler"
	"readingsurvey/internal/transport/rest/middleware"
	"readingsurvey/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	Sessions *service.SessionManager
	Catalog  service.CatalogSource
	WSHub    *ws.Hub
	Log      *logger.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(c.Sessions, c.Log)
	textHandler := handler.NewTextHandler(c.Catalog)
	wsHandler := ws.NewHandler(c.WSHub, c.Sessions, c.Log)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.Sessions.Tokens())

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/tabs", sessionHandler.OpenTab).Methods("POST", "OPTIONS")
	v1.HandleFunc("/texts/{textId}", textHandler.Get).Methods("GET", "OPTIONS")

	// WebSocket routes (public with token in query param)
	v1.HandleFunc("/ws/session", wsHandler.SessionWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Session routes (require tab token)
	tabRoutes := v1.PathPrefix("/session").Subrouter()
	tabRoutes.Use(authMW.RequireTab)

	tabRoutes.HandleFunc("", sessionHandler.View).Methods("GET", "OPTIONS")
	tabRoutes.HandleFunc("", sessionHandler.Close).Methods("DELETE")
	tabRoutes.HandleFunc("/consent", sessionHandler.Consent).Methods("POST", "OPTIONS")
	tabRoutes.HandleFunc("/prefetch", sessionHandler.Prefetch).Methods("POST", "OPTIONS")
	tabRoutes.HandleFunc("/background", sessionHandler.Background).Methods("POST", "OPTIONS")
	tabRoutes.HandleFunc("/back", sessionHandler.Back).Methods("POST", "OPTIONS")
	tabRoutes.HandleFunc("/answers", sessionHandler.Answers).Methods("POST", "OPTIONS")
	tabRoutes.HandleFunc("/questionnaire", sessionHandler.Questionnaire).Methods("POST", "OPTIONS")
	tabRoutes.HandleFunc("/skip", sessionHandler.Skip).Methods("POST", "OPTIONS")
	tabRoutes.HandleFunc("/retry", sessionHandler.Retry).Methods("POST", "OPTIONS")
	tabRoutes.HandleFunc("/restart", sessionHandler.Restart).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
