package easysave

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Run starts the HTTP server.
//
// Public endpoints (no credentials required):
//
//	POST /api/create_user   - Register a new account
//	GET  /api/login         - Exchange username+password for the access key
//	GET  /api/health        - Service health status
//
// Protected endpoints require RequesterUsername and RequesterAccessKey
// headers; the authenticated identity supplies the namespace root for
// every block operation:
//
//	GET   /api/get_user     - Look up an account by one criterion
//	PATCH /api/update_user  - Patch the caller's email/accessKey/password
//	POST  /api/create_block - Store a block under the caller's namespace
//	GET   /api/get_blocks   - Prefix-retrieve blocks in the caller's namespace
//	PATCH /api/update_block - Replace an existing block's value
//	POST  /api/delete_block - Remove the exact identifier, non-cascading
//	GET   /api/events       - WebSocket feed of the caller's block mutations
//
// The method blocks until the context is cancelled or a fatal server
// error occurs. On shutdown, active requests get five seconds to finish.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	router := a.Router()

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().Str("addr", addr).Msg("starting easysave server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Router builds the full route table with CORS, request logging, and
// access-control middleware applied. Exposed separately so tests can
// drive the exact production handler chain through httptest.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.Use(a.corsMiddleware)
	api.Use(a.loggingMiddleware)
	api.Use(a.authMiddleware)

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	// Account routes
	api.HandleFunc("/create_user", a.handleCreateUser).Methods("POST")
	api.HandleFunc("/login", a.handleLogin).Methods("GET")
	api.HandleFunc("/get_user", a.handleGetUser).Methods("GET")
	api.HandleFunc("/update_user", a.handleUpdateUser).Methods("PATCH")

	// Block routes
	api.HandleFunc("/create_block", a.handleCreateBlock).Methods("POST")
	api.HandleFunc("/get_blocks", a.handleGetBlocks).Methods("GET")
	api.HandleFunc("/update_block", a.handleUpdateBlock).Methods("PATCH")
	api.HandleFunc("/delete_block", a.handleDeleteBlock).Methods("POST")

	// Live event feed
	api.HandleFunc("/events", a.handleEvents).Methods("GET")

	return router
}
