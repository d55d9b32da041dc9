package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	poolcoach "github.com/menta2k/pool-coach"
	"github.com/menta2k/pool-coach/pkg/apperrors"
	"github.com/menta2k/pool-coach/pkg/session"
	"github.com/menta2k/pool-coach/pkg/types"
)

// Coach runs the photo-to-advice pipeline
type Coach interface {
	AnalyzePhoto(ctx context.Context, raw []byte, params types.AnalysisParameters) (*types.AnalysisResult, error)
}

// Options configures the HTTP API
type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	// RequestTimeout bounds one analysis, sync or async. Zero means none.
	RequestTimeout time.Duration
	// SessionTTL evicts sessions untouched for this long that have no scan
	// in flight. Zero selects DefaultSessionTTL; negative disables eviction.
	SessionTTL time.Duration
	Logger     *zap.Logger
}

// DefaultSessionTTL is the idle time after which a session is evicted
const DefaultSessionTTL = 30 * time.Minute

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SnapshotResponse struct {
	Token   session.Token         `json:"token"`
	State   session.State         `json:"state"`
	Result  *types.AnalysisResult `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
	Message string                `json:"message,omitempty"`
}

// Server serves the HTTP API and owns the per-client scan sessions
type Server struct {
	coach  Coach
	opts   Options
	logger *zap.Logger
	engine *gin.Engine

	// base outlives requests so async scans keep running after 202
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
	// drain tracks the sweeper and sessions removed from the registry
	drain sync.WaitGroup
}

type entry struct {
	sess     *session.Session
	lastUsed time.Time
}

// New creates the server and its routes
func New(coach Coach, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = DefaultSessionTTL
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		coach:    coach,
		opts:     opts,
		logger:   opts.Logger,
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]*entry),
	}
	if opts.SessionTTL > 0 {
		s.drain.Add(1)
		go s.sweepLoop(opts.SessionTTL)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(s.logger),
		cors.New(corsConfig(opts.AllowedOrigins)),
	)

	r.GET("/health", healthCheck)

	api := r.Group("/api")
	api.Use(requestSizeLimiter(opts.MaxUploadBytes))
	{
		api.POST("/analyze", s.analyze)
		api.POST("/sessions/:id/scan", s.scan)
		api.GET("/sessions/:id", s.snapshot)
		api.DELETE("/sessions/:id", s.reset)
	}

	s.engine = r
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close cancels in-flight scans and waits for them to finish, including
// scans of sessions already deleted or evicted
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	all := make([]*session.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		all = append(all, e.sess)
	}
	s.mu.Unlock()
	for _, sess := range all {
		sess.Wait()
	}
	s.drain.Wait()
}

func (s *Server) sweepLoop(ttl time.Duration) {
	defer s.drain.Done()
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.base.Done():
			return
		case now := <-ticker.C:
			if n := s.sweep(now); n > 0 {
				s.logger.Debug("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// sweep evicts sessions idle since before now-ttl with no scan pending
func (s *Server) sweep(now time.Time) int {
	cutoff := now.Add(-s.opts.SessionTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.sessions {
		if e.lastUsed.After(cutoff) || e.sess.Snapshot().State == session.StatePending {
			continue
		}
		delete(s.sessions, id)
		s.retireLocked(e.sess)
		n++
	}
	return n
}

// retireLocked keeps a removed session visible to Close until its scans end.
// mu must be held.
func (s *Server) retireLocked(sess *session.Session) {
	if s.closed {
		return
	}
	s.drain.Add(1)
	go func() {
		defer s.drain.Done()
		sess.Wait()
	}()
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": poolcoach.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) analyze(c *gin.Context) {
	raw, params, err := readForm(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := s.withTimeout(c.Request.Context())
	defer cancel()

	result, err := s.coach.AnalyzePhoto(ctx, raw, params)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) scan(c *gin.Context) {
	raw, params, err := readForm(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	id := c.Param("id")
	sess := s.session(id, true)
	tok := sess.Start(s.base, func(ctx context.Context) (*types.AnalysisResult, error) {
		ctx, cancel := s.withTimeout(ctx)
		defer cancel()
		return s.coach.AnalyzePhoto(ctx, raw, params)
	})

	s.logger.Debug("scan started", zap.String("session", id), zap.Uint64("token", uint64(tok)))
	c.JSON(http.StatusAccepted, gin.H{"session": id, "token": tok})
}

func (s *Server) snapshot(c *gin.Context) {
	sess := s.session(c.Param("id"), false)
	if sess == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "unknown session"})
		return
	}

	snap := sess.Snapshot()
	resp := SnapshotResponse{Token: snap.Token, State: snap.State, Result: snap.Result}
	if snap.Err != nil {
		resp.Error = string(apperrors.KindOf(snap.Err))
		resp.Message = apperrors.UserMessage(snap.Err)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) reset(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		s.retireLocked(e.sess)
	}
	s.mu.Unlock()

	if ok {
		e.sess.Reset()
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) session(id string, create bool) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		if !create {
			return nil
		}
		e = &entry{sess: session.New(s.logger.With(zap.String("session", id)))}
		s.sessions[id] = e
	}
	e.lastUsed = time.Now()
	return e.sess
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

// readForm extracts the photo and parameters from a multipart request
func readForm(c *gin.Context) ([]byte, types.AnalysisParameters, error) {
	var params types.AnalysisParameters

	file, err := c.FormFile("image")
	if err != nil {
		if isTooLarge(err) {
			return nil, params, errTooLarge
		}
		return nil, params, apperrors.NewInvalidInputError("missing image field", err)
	}

	f, err := file.Open()
	if err != nil {
		return nil, params, apperrors.NewInvalidInputError("unreadable upload", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, params, apperrors.NewInvalidInputError("unreadable upload", err)
	}

	suit := c.DefaultPostForm("suit", string(types.SuitOpen))
	if params.Suit, err = types.ParseSuit(suit); err != nil {
		return nil, params, apperrors.NewInvalidInputError(err.Error(), err)
	}

	mode := c.DefaultPostForm("mode", string(types.ModeCasual))
	if params.Mode, err = types.ParseMode(mode); err != nil {
		return nil, params, apperrors.NewInvalidInputError(err.Error(), err)
	}

	if foul := c.PostForm("foul"); foul != "" {
		if params.Foul, err = strconv.ParseBool(foul); err != nil {
			return nil, params, apperrors.NewInvalidInputError("foul must be true or false", err)
		}
	}

	return raw, params, nil
}

var errTooLarge = errors.New("upload exceeds size limit")

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func (s *Server) respondError(c *gin.Context, err error) {
	code := apperrors.GetStatusCode(err)
	kind := apperrors.KindOf(err)
	message := apperrors.UserMessage(err)

	switch {
	case errors.Is(err, errTooLarge):
		code = http.StatusRequestEntityTooLarge
		kind = apperrors.KindInvalidInput
		message = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}

	s.logger.Warn("request failed",
		zap.Error(err),
		zap.Int("status_code", code),
		zap.String("kind", string(kind)),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("ip", c.ClientIP()),
	)

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   string(kind),
		Message: message,
	})
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("cost", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}
