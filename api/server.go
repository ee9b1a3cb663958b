package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/judgegodwins/chess-relay/directory"
	"github.com/judgegodwins/chess-relay/util"
	"github.com/judgegodwins/chess-relay/ws"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Server struct {
	config    *util.Config
	wsManager *ws.Manager
	router    *gin.Engine
	directory directory.Store
	logger    *zap.Logger
	http      *http.Server
}

// NewServer wires the HTTP routes. store may be nil when no room directory
// is configured.
func NewServer(config *util.Config, manager *ws.Manager, store directory.Store, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		config:    config,
		wsManager: manager,
		router:    router,
		directory: store,
		logger:    logger,
	}

	router.Use(server.RecoveryMiddleware(), server.LoggerMiddleware)

	router.GET("/ws", server.wsManager.ServeWS)
	router.GET("/rooms/:id", server.CheckRoom)
	router.GET("/healthz", server.Health)

	server.http = &http.Server{
		Addr:              fmt.Sprintf(":%v", config.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Handler is the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(s.router)
}

func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
