// Package httpapi exposes brand matching over JSON HTTP.
package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"yashubustudio/brandmatch/brandmatch"
)

// MaxBatchQueries bounds the size of a batch request.
const MaxBatchQueries = 500

// Searcher is the part of brandmatch.Service the API needs.
type Searcher interface {
	FuseWith(ctx context.Context, query string, opts brandmatch.FuseOptions) brandmatch.Report
	FuseAll(ctx context.Context, queries []string, opts brandmatch.FuseOptions) ([]brandmatch.Report, error)
	Search(ctx context.Context, name, query string) ([]brandmatch.Scored, error)
	StrategyNames() []string
	CorpusSize() int
	Config() brandmatch.Config
}

type handler struct {
	svc    Searcher
	logger *log.Logger
}

// NewRouter builds the gin engine serving svc.
func NewRouter(svc Searcher, logger *log.Logger) *gin.Engine {
	h := &handler{svc: svc, logger: logger}
	router := gin.New()
	router.Use(requestID(), accessLog(logger), gin.Recovery(), compress())

	router.GET("/healthz", h.health)
	api := router.Group("/api")
	api.GET("/search", h.search)
	api.POST("/batch", h.batch)
	api.GET("/strategies", h.strategies)
	api.GET("/strategies/:name/search", h.strategySearch)
	return router
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"corpusSize": h.svc.CorpusSize(),
		"strategies": h.svc.StrategyNames(),
	})
}

func (h *handler) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		h.fail(c, http.StatusBadRequest, "query parameter q is required")
		return
	}
	opts, err := h.options(c.Query("threshold"), c.Query("limit"))
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.svc.FuseWith(c.Request.Context(), query, opts))
}

type batchRequest struct {
	Queries   []string `json:"queries"`
	Threshold *float64 `json:"threshold,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

func (h *handler) batch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	queries := make([]string, 0, len(req.Queries))
	for _, q := range req.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		h.fail(c, http.StatusBadRequest, "queries must not be empty")
		return
	}
	if len(queries) > MaxBatchQueries {
		h.fail(c, http.StatusRequestEntityTooLarge, "too many queries: max "+strconv.Itoa(MaxBatchQueries))
		return
	}
	opts := h.svc.Config().FuseOptions()
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}
	if req.Limit > 0 {
		opts.FlatLimit = req.Limit
	}
	reports, err := h.svc.FuseAll(c.Request.Context(), queries, opts)
	if err != nil {
		h.fail(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *handler) strategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": h.svc.StrategyNames()})
}

func (h *handler) strategySearch(c *gin.Context) {
	name := c.Param("name")
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		h.fail(c, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	scored, err := h.svc.Search(c.Request.Context(), name, query)
	switch {
	case errors.Is(err, brandmatch.ErrUnknownStrategy):
		h.fail(c, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	if scored == nil {
		scored = []brandmatch.Scored{}
	}
	c.JSON(http.StatusOK, gin.H{"strategy": name, "query": query, "results": scored})
}

func (h *handler) options(threshold, limit string) (brandmatch.FuseOptions, error) {
	opts := h.svc.Config().FuseOptions()
	if threshold != "" {
		v, err := strconv.ParseFloat(threshold, 64)
		if err != nil || v < 0 || v > 100 {
			return opts, errors.New("threshold must be a number between 0 and 100")
		}
		opts.Threshold = v
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return opts, errors.New("limit must be a non-negative integer")
		}
		opts.FlatLimit = n
	}
	return opts, nil
}

func (h *handler) fail(c *gin.Context, status int, message string) {
	if h.logger != nil {
		h.logger.Printf("http %d %s %s: %s id=%s", status, c.Request.Method, c.Request.URL.Path, message, requestIDFrom(c))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": true, "message": message})
}
