package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Quote retrieval
	mux.HandleFunc("/api/quote", s.app.QuoteHandler.QuoteHandler)
	mux.HandleFunc("/api/indicators", s.app.IndicatorsHandler.IndicatorsHandler)

	// API routes - Source registry
	mux.HandleFunc("/api/sources", s.app.SourcesHandler.ListSourcesHandler)
	mux.HandleFunc("/api/sources/default", s.handleDefaultSourceRoute)

	// API routes - Quote cache
	mux.HandleFunc("/api/cache", s.app.CacheHandler.GetCacheHandler)
	mux.HandleFunc("/api/cache/sweep", s.app.CacheHandler.SweepCacheHandler)

	// API routes - Credential store
	mux.HandleFunc("/api/keys", s.handleKeyCollectionRoute)
	mux.HandleFunc("/api/keys/", s.handleKeyItemRoute)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleDefaultSourceRoute routes /api/sources/default requests (read and change)
func (s *Server) handleDefaultSourceRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.SourcesHandler.GetDefaultHandler,
		"POST": s.app.SourcesHandler.SetDefaultHandler,
	})
}

// handleKeyCollectionRoute routes /api/keys requests
func (s *Server) handleKeyCollectionRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.KVHandler.ListKeysHandler,
		"POST": s.app.KVHandler.CreateKeyHandler,
	})
}

// handleKeyItemRoute routes /api/keys/{key} requests
func (s *Server) handleKeyItemRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":    s.app.KVHandler.GetKeyHandler,
		"PUT":    s.app.KVHandler.UpdateKeyHandler,
		"DELETE": s.app.KVHandler.DeleteKeyHandler,
	})
}
