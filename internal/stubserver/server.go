// Package stubserver serves a tracking.Client over the repository HTTP API.
//
// Any Client can be exposed, though the usual backend is a
// tracking.MemoryRepository loaded from a fixture file. Pointing a
// tracking.HTTPClient at the server exercises the full wire path against
// deterministic data.
package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/tracking"
	"github.com/fyrsmithlabs/repotrack/internal/wire"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultBasePath is the prefix the tracking paths are mounted under.
const DefaultBasePath = "/alfresco/service"

// Server exposes a tracking.Client over HTTP.
type Server struct {
	echo    *echo.Echo
	backend tracking.Client
	logger  *zap.Logger
	config  *Config
}

// Config holds stub server configuration.
type Config struct {
	Host     string
	Port     int
	BasePath string
	// Gatherer backs GET /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// NewServer creates a server answering from backend.
func NewServer(backend tracking.Client, logger *zap.Logger, cfg *Config) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("stub request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		backend: backend,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	g := s.echo.Group(s.config.BasePath)
	g.GET("/"+wire.PathAclChangeSets, s.handleAclChangeSets)
	g.POST("/"+wire.PathAcls, s.handleAcls)
	g.POST("/"+wire.PathAclReaders, s.handleAclReaders)
	g.GET("/"+wire.PathTransactions, s.handleTransactions)
	g.POST("/"+wire.PathNodes, s.handleNodes)
	g.POST("/"+wire.PathMetadata, s.handleMetadata)
	g.GET("/"+wire.PathTextContent, s.handleTextContent)
	g.POST("/"+wire.PathModelsDiff, s.handleModelsDiff)
	g.GET("/"+wire.PathModel, s.handleModel)
	g.GET("/"+wire.PathNextTransaction, s.handleNextTransaction)
	g.GET("/"+wire.PathTransactionInterval, s.handleTransactionInterval)
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleAclChangeSets(c echo.Context) error {
	q, err := cursorQuery(c, wire.ParamFromTime, wire.ParamFromID, wire.ParamToTime, wire.ParamToID)
	if err != nil {
		return err
	}
	page, err := s.backend.GetAclChangeSets(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tracking.AclChangeSetsToWire(page))
}

func (s *Server) handleAcls(c echo.Context) error {
	var req wire.AclsRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	params := c.QueryParams()
	minAclID, err := wire.Int64(params, wire.ParamFromID)
	if err != nil {
		return badRequest(err)
	}
	maxResults, err := wire.Int(params, wire.ParamMaxResults, 0)
	if err != nil {
		return badRequest(err)
	}

	changeSets := make([]tracking.AclChangeSet, 0, len(req.AclChangeSetIDs))
	for _, id := range req.AclChangeSetIDs {
		changeSets = append(changeSets, tracking.AclChangeSet{ID: id})
	}
	acls, err := s.backend.GetAcls(c.Request().Context(), changeSets, minAclID, maxResults)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tracking.AclsToWire(acls))
}

func (s *Server) handleAclReaders(c echo.Context) error {
	var req wire.AclReadersRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	acls := make([]tracking.Acl, 0, len(req.AclIDs))
	for _, id := range req.AclIDs {
		acls = append(acls, tracking.Acl{ID: id})
	}
	readers, err := s.backend.GetAclReaders(c.Request().Context(), acls)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tracking.AclReadersToWire(readers))
}

func (s *Server) handleTransactions(c echo.Context) error {
	q, err := cursorQuery(c, wire.ParamFromCommitTime, wire.ParamMinTxnID, wire.ParamToCommitTime, wire.ParamMaxTxnID)
	if err != nil {
		return err
	}
	shard, err := tracking.ShardStateFromQuery(c.QueryParams())
	if err != nil {
		return badRequest(err)
	}
	page, err := s.backend.GetTransactions(c.Request().Context(), q, shard)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tracking.TransactionsToWire(page))
}

func (s *Server) handleNodes(c echo.Context) error {
	var req wire.NodesRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	p, maxResults, err := tracking.NodesRequestFromWire(req)
	if err != nil {
		return badRequest(err)
	}
	nodes, err := s.backend.GetNodes(c.Request().Context(), p, maxResults)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tracking.NodesToWire(nodes))
}

func (s *Server) handleMetadata(c echo.Context) error {
	var req wire.MetadataRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	mds, err := s.backend.GetNodesMetaData(c.Request().Context(), tracking.MetadataRequestFromWire(req))
	if err != nil {
		return err
	}

	resp := wire.NodesResponse[wire.NodeMetaData]{Nodes: make([]wire.NodeMetaData, 0, len(mds))}
	for _, md := range mds {
		w, err := tracking.NodeMetaDataToWire(md)
		if err != nil {
			return fmt.Errorf("encoding node %d: %w", md.ID, err)
		}
		resp.Nodes = append(resp.Nodes, w)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTextContent(c echo.Context) error {
	params := c.QueryParams()
	nodeID, err := wire.Int64(params, wire.ParamNodeID)
	if err != nil {
		return badRequest(err)
	}
	if nodeID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, wire.ParamNodeID+" is required")
	}
	var prop dictionary.QName
	if raw := params.Get(wire.ParamPropertyQName); raw != "" {
		if prop, err = dictionary.ParseQName(raw); err != nil {
			return badRequest(err)
		}
	}
	var since *time.Time
	if raw := c.Request().Header.Get(wire.HeaderIfModifiedSince); raw != "" {
		t, err := http.ParseTime(raw)
		if err != nil {
			return badRequest(fmt.Errorf("%s: %w", wire.HeaderIfModifiedSince, err))
		}
		since = &t
	}

	tc, err := s.backend.GetTextContent(c.Request().Context(), *nodeID, prop, since)
	if err != nil {
		return err
	}
	defer tc.Close()

	code, transformStatus := tracking.StatusCodeFor(tc.Status)
	h := c.Response().Header()
	if transformStatus != "" {
		h.Set(wire.HeaderTransformStatus, transformStatus)
	}
	if tc.TransformException != "" {
		h.Set(wire.HeaderTransformException, tc.TransformException)
	}
	if tc.TransformDuration != nil {
		h.Set(wire.HeaderTransformDuration, strconv.FormatInt(tc.TransformDuration.Milliseconds(), 10))
	}
	if code != http.StatusOK {
		return c.NoContent(code)
	}
	return c.Stream(http.StatusOK, "text/plain; charset=UTF-8", tc)
}

func (s *Server) handleModelsDiff(c echo.Context) error {
	var req wire.ModelsDiffRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	models, err := tracking.ModelRefsFromWire(req)
	if err != nil {
		return badRequest(err)
	}
	diffs, err := s.backend.GetModelsDiff(c.Request().Context(), models)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tracking.ModelDiffsToWire(diffs))
}

func (s *Server) handleModel(c echo.Context) error {
	raw := c.QueryParam(wire.ParamModelQName)
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, wire.ParamModelQName+" is required")
	}
	name, err := dictionary.ParseQName(raw)
	if err != nil {
		return badRequest(err)
	}
	m, err := s.backend.GetModel(c.Request().Context(), name, nil)
	if err != nil {
		return err
	}
	c.Response().Header().Set(wire.HeaderModelChecksum, strconv.FormatInt(m.Checksum, 10))
	return c.Blob(http.StatusOK, "text/xml; charset=UTF-8", m.Content)
}

func (s *Server) handleNextTransaction(c echo.Context) error {
	from, err := wire.Int64(c.QueryParams(), wire.ParamFromCommitTime)
	if err != nil {
		return badRequest(err)
	}
	if from == nil {
		return echo.NewHTTPError(http.StatusBadRequest, wire.ParamFromCommitTime+" is required")
	}

	var resp wire.NextTransactionResponse
	next, err := s.backend.GetNextTxCommitTime(c.Request().Context(), *from)
	switch {
	case errors.Is(err, tracking.ErrNoTransaction):
	case err != nil:
		return err
	default:
		resp.NextTransactionCommitTimeMs = &next
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTransactionInterval(c echo.Context) error {
	params := c.QueryParams()
	from, err := wire.Int64(params, wire.ParamFromNodeID)
	if err != nil {
		return badRequest(err)
	}
	to, err := wire.Int64(params, wire.ParamToNodeID)
	if err != nil {
		return badRequest(err)
	}
	if from == nil || to == nil {
		return echo.NewHTTPError(http.StatusBadRequest, wire.ParamFromNodeID+" and "+wire.ParamToNodeID+" are required")
	}

	var resp wire.TransactionIntervalResponse
	iv, err := s.backend.GetTxIntervalCommitTime(c.Request().Context(), *from, *to)
	switch {
	case errors.Is(err, tracking.ErrNoTransaction):
	case err != nil:
		return err
	default:
		resp.MinTransactionCommitTimeMs = &iv.MinCommitTimeMs
		resp.MaxTransactionCommitTimeMs = &iv.MaxCommitTimeMs
	}
	return c.JSON(http.StatusOK, resp)
}

// cursorQuery reads a CursorQuery from the named query parameters.
func cursorQuery(c echo.Context, fromTime, minID, toTime, maxID string) (tracking.CursorQuery, error) {
	params := c.QueryParams()
	var q tracking.CursorQuery
	var err error
	if q.FromCommitTime, err = wire.Int64(params, fromTime); err != nil {
		return q, badRequest(err)
	}
	if q.MinID, err = wire.Int64(params, minID); err != nil {
		return q, badRequest(err)
	}
	if q.ToCommitTime, err = wire.Int64(params, toTime); err != nil {
		return q, badRequest(err)
	}
	if q.MaxID, err = wire.Int64(params, maxID); err != nil {
		return q, badRequest(err)
	}
	if q.MaxResults, err = wire.Int(params, wire.ParamMaxResults, 0); err != nil {
		return q, badRequest(err)
	}
	return q, nil
}

// bindJSON decodes the request body into v. Unknown fields are rejected so a
// client and server disagreeing on the format fail loudly.
func bindJSON(c echo.Context, v any) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, 8<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
}

// statusFor maps a backend error to the response status a repository sends.
func statusFor(err error) int {
	var he *echo.HTTPError
	var use *tracking.UnexpectedStatusError
	var mue *tracking.MethodUnreachableError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &use):
		return use.StatusCode
	case errors.As(err, &mue) && mue.StatusCode != 0:
		return mue.StatusCode
	case errors.Is(err, tracking.ErrMissingAclReaders):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, tracking.ErrClosed), errors.Is(err, tracking.ErrInjectedFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body of an error response.
type ErrorResponse struct {
	Message string `json:"message"`
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := statusFor(err)
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		if code >= http.StatusInternalServerError {
			logger.Warn("stub request failed",
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", code),
				zap.Error(err),
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, ErrorResponse{Message: msg})
		}
		if werr != nil {
			logger.Debug("writing error response", zap.Error(werr))
		}
	}
}

// Start listens on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting stub server",
		zap.String("addr", addr),
		zap.String("base_path", s.config.BasePath),
	)
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down stub server")
	return s.echo.Shutdown(ctx)
}
