package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Extension agents (websocket bridge, extension mode only)
	if s.app.Bridge != nil {
		mux.Handle(agentSocketPath, s.app.Bridge)
	}

	// API routes - Watch mode
	mux.HandleFunc("/api/watch/start", s.app.WatchHandler.StartHandler)
	mux.HandleFunc("/api/watch/stop", s.app.WatchHandler.StopHandler)
	mux.HandleFunc("/api/watch/status", s.app.WatchHandler.StatusHandler)
	mux.HandleFunc("/api/watch/sessions", s.app.WatchHandler.SessionsHandler)

	// API routes - Agent notifications over plain HTTP
	mux.HandleFunc("/api/agent/page-loaded", s.app.AgentHandler.PageLoadedHandler)
	mux.HandleFunc("/api/agent/batch-result", s.app.AgentHandler.BatchResultHandler)
	mux.HandleFunc("/api/agent/ping", s.app.AgentHandler.PingHandler)
	mux.HandleFunc("/api/agent/tabs", s.handleTabsRoute)
	mux.HandleFunc("/api/agent/tabs/", s.handleTabRoutes)

	// API routes - Manual extraction and history
	mux.HandleFunc("/api/extract", s.app.ExtractHandler.ExtractHandler)
	mux.HandleFunc("/api/history", s.app.HistoryHandler.HistoryHandler)

	// API routes - Users
	mux.HandleFunc("/api/users/me", s.app.UsersHandler.AccountHandler)
	mux.HandleFunc("/api/users/register", s.app.UsersHandler.RegisterHandler)
	mux.HandleFunc("/api/users/username", s.app.UsersHandler.UsernameHandler)
	mux.HandleFunc("/api/users/resume", s.app.UsersHandler.ResumeHandler)
	mux.HandleFunc("/api/users/scroll-count", s.app.UsersHandler.ScrollCountHandler)
	mux.HandleFunc("/api/users/contacts", s.app.UsersHandler.ContactsHandler)

	// API routes - Filter profiles
	mux.HandleFunc("/api/profiles", s.handleProfilesRoute)
	mux.HandleFunc("/api/profiles/", s.handleProfileRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleTabsRoute routes /api/agent/tabs requests (list and open)
func (s *Server) handleTabsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.TabsHandler.ListHandler, s.app.TabsHandler.OpenHandler)
}

// handleTabRoutes routes /api/agent/tabs/{id} requests
func (s *Server) handleTabRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r, nil, nil, s.app.TabsHandler.CloseHandler)
}

// handleProfilesRoute routes /api/profiles requests (list and create)
func (s *Server) handleProfilesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.ProfilesHandler.ListHandler, s.app.ProfilesHandler.CreateHandler)
}

// handleProfileRoutes routes /api/profiles/{id} requests
func (s *Server) handleProfileRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r,
		s.app.ProfilesHandler.GetHandler,
		s.app.ProfilesHandler.UpdateHandler,
		s.app.ProfilesHandler.DeleteHandler,
	)
}
