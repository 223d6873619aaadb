// Package server provides the webexsync status API on Gin.
//
//	Public:          GET /api/health, POST /api/login, GET /metrics
//	Protected (JWT): GET /api/status, GET /api/devices/tree,
//	                 GET /api/endpoints/:id/samples
//	Fallback:        embedded status page
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/models"
	"github.com/vesaa/webexsync/internal/pull"
	"github.com/vesaa/webexsync/internal/store"
)

const (
	defaultSampleLimit = 100
	maxSampleLimit     = 1000
)

// Reader is the read side of the store the API serves from.
type Reader interface {
	Tree(ctx context.Context) ([]*models.NodeTree, error)
	Endpoint(ctx context.Context, nodeID string) (*models.Endpoint, error)
	Samples(ctx context.Context, endpointID string, limit int) ([]models.Sample, error)
	OrganStatus(ctx context.Context, name string) (*models.OrganStatus, error)
}

// LoopStatus exposes the sync loop's progress.
type LoopStatus interface {
	State() pull.State
	LastSync() time.Time
	Network() models.Node
}

// TokenStatus exposes the access token's lifetime.
type TokenStatus interface {
	ExpiresAt() time.Time
}

// Options configures a Server.
type Options struct {
	OrganName string
	JWTSecret string
	AdminUser string
	AdminPass string
}

// Server serves the status API.
type Server struct {
	organ  string
	reader Reader
	loop   LoopStatus
	tokens TokenStatus
	auth   *Authenticator
	host   *hostCollector
	log    zerolog.Logger
}

// New builds a Server over its read-only collaborators.
func New(opts Options, reader Reader, loop LoopStatus, tokens TokenStatus) (*Server, error) {
	auth, err := NewAuthenticator(opts.JWTSecret, opts.AdminUser, opts.AdminPass)
	if err != nil {
		return nil, err
	}
	return &Server{
		organ:  opts.OrganName,
		reader: reader,
		loop:   loop,
		tokens: tokens,
		auth:   auth,
		host:   &hostCollector{},
		log:    logging.With().Str("component", "server").Logger(),
	}, nil
}

// Engine returns a Gin engine with every route and the static fallback.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.RegisterRoutes(r)
	RegisterStaticFiles(r)
	return r
}

// RegisterRoutes wires the API on r.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	api.POST("/login", s.handleLogin)

	auth := api.Group("/", s.auth.Middleware())
	{
		auth.GET("/status", s.handleStatus)
		auth.GET("/devices/tree", s.handleDeviceTree)
		auth.GET("/endpoints/:id/samples", s.handleSamples)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// handleLogin accepts username + password and returns a signed JWT.
//
//	POST /api/login
//	Body: { "username": "admin", "password": "admin" }
func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if !s.auth.Verify(body.Username, body.Password) {
		s.log.Warn().Str("username", body.Username).Msg("Rejected login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.auth.Issue(body.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(tokenTTL.Seconds()),
		"type":       "Bearer",
	})
}

// handleStatus reports loop progress, token lifetime and host stats.
func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	resp := gin.H{
		"organ": s.organ,
		"state": s.loop.State().String(),
		"host":  s.host.Collect(ctx),
	}

	if last := s.loop.LastSync(); !last.IsZero() {
		resp["last_sync"] = last.UTC()
	}
	if n := s.loop.Network(); n.ID != "" {
		resp["network"] = gin.H{"id": n.ID, "name": n.Name}
	}
	if exp := s.tokens.ExpiresAt(); !exp.IsZero() {
		resp["token_expires_at"] = exp.UTC()
	}

	status, err := s.reader.OrganStatus(ctx, s.organ)
	switch {
	case err == nil:
		resp["pull_interval_ms"] = status.PullIntervalMS
		resp["recorded_sync"] = status.LastSync.UTC()
	case errors.Is(err, store.ErrNotFound):
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleDeviceTree returns contexts → devices → endpoints.
func (s *Server) handleDeviceTree(c *gin.Context) {
	tree, err := s.reader.Tree(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tree})
}

// handleSamples returns recent samples of one endpoint, newest first.
func (s *Server) handleSamples(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	limit := defaultSampleLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxSampleLimit)
	}

	ep, err := s.reader.Endpoint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	samples, err := s.reader.Samples(ctx, id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoint": ep, "data": samples})
}
