package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/brandmatch/brandmatch"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := brandmatch.DefaultConfig()
	cfg.Strategies = []string{brandmatch.StrategyLevenshtein, brandmatch.StrategyNGram, brandmatch.StrategyPhonetic}
	svc, err := brandmatch.NewService(context.Background(), cfg, nil,
		brandmatch.WithCorpusLoader(brandmatch.StaticLoader{"cocacola", "coca cola light", "pepsi", "Bimbo"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return NewRouter(svc, nil)
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, setupRouter(t), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body struct {
		Status     string   `json:"status"`
		CorpusSize int      `json:"corpusSize"`
		Strategies []string `json:"strategies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 4, body.CorpusSize)
	assert.Len(t, body.Strategies, 3)
}

func TestSearch(t *testing.T) {
	router := setupRouter(t)
	w := do(t, router, http.MethodGet, "/api/search?q=coca-cola&threshold=70", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report brandmatch.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 70.0, report.Threshold)
	require.NotEmpty(t, report.Matches)
	assert.Equal(t, "cocacola", report.Matches[0].Term)
	for _, m := range report.Matches {
		assert.NotEqual(t, "pepsi", m.Term)
	}

	w = do(t, router, http.MethodGet, "/api/search?q=coca-cola&threshold=0&limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Len(t, report.Matches, 2)
}

func TestSearchValidation(t *testing.T) {
	router := setupRouter(t)
	for _, target := range []string{
		"/api/search",
		"/api/search?q=%20",
		"/api/search?q=x&threshold=abc",
		"/api/search?q=x&threshold=120",
		"/api/search?q=x&limit=-1",
	} {
		w := do(t, router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Contains(t, w.Body.String(), `"error":true`, target)
	}
}

func TestStrategies(t *testing.T) {
	router := setupRouter(t)
	w := do(t, router, http.MethodGet, "/api/strategies", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"strategies":["levenshtein","ngram","phonetic"]}`, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/strategies/ngram/search?q=coca-cola&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Results []brandmatch.Scored `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, brandmatch.Scored{Term: "cocacola", Score: 100}, body.Results[0])

	w = do(t, router, http.MethodGet, "/api/strategies/soundex/search?q=x", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatch(t *testing.T) {
	router := setupRouter(t)
	w := do(t, router, http.MethodPost, "/api/batch", `{"queries":["bimbo"," ","coca-cola"],"threshold":90}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Reports []brandmatch.Report `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Reports, 2)
	assert.Equal(t, "bimbo", body.Reports[0].Query)
	assert.Equal(t, "bimbo", body.Reports[0].Matches[0].Term)
	assert.Equal(t, 90.0, body.Reports[1].Threshold)

	w = do(t, router, http.MethodPost, "/api/batch", `{"queries":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodPost, "/api/batch", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStrategySearchModelUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := brandmatch.DefaultConfig()
	cfg.Strategies = []string{brandmatch.StrategyBETO, brandmatch.StrategyNGram}
	svc, err := brandmatch.NewService(context.Background(), cfg, nil,
		brandmatch.WithCorpusLoader(brandmatch.StaticLoader{"bimbo", "gamesa"}),
		brandmatch.WithEmbedderFactory(brandmatch.StrategyBETO, func() (brandmatch.Embedder, error) {
			return nil, errors.New("no onnx")
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	router := NewRouter(svc, nil)

	w := do(t, router, http.MethodGet, "/api/strategies/beto/search?q=bimbo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"strategy":"beto","query":"bimbo","results":[]}`, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/search?q=bimbo", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report brandmatch.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, brandmatch.WarningModelUnavailable, report.Warnings[0].Kind)
}
