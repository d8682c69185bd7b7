package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletscope/internal/chain"
	"github.com/mbd888/walletscope/internal/intel"
	"github.com/mbd888/walletscope/internal/risk"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r
}

func TestGetReportEndpoint(t *testing.T) {
	svc := newTestService(t, &stubFetcher{txs: sampleTxs()}, nil)
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/report", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var report Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, subjectAddr, report.Address)
	assert.Len(t, report.Breakdown, 13)
	assert.NotNil(t, report.Threat)
}

func TestGetReportUpstreamFailure(t *testing.T) {
	svc := newTestService(t, &stubFetcher{txErr: fmt.Errorf("status 503: %w", chain.ErrUpstream)}, nil)
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/report", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "indexer_unavailable")
}

func TestGetReportInvalidAddress(t *testing.T) {
	svc := newTestService(t, &stubFetcher{txErr: chain.ErrInvalidAddress}, nil)
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/notanaddress/report", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_address")
}

func TestGetGraphEndpoint(t *testing.T) {
	svc := newTestService(t, &stubFetcher{txs: sampleTxs()}, nil)
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/graph", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var view GraphView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.Graph.Nodes, 3)
	assert.Equal(t, 1, view.ClusterCount)
}

func TestGetThreatEndpoint(t *testing.T) {
	provider := intel.NewListProvider("community", map[string]intel.Listing{
		flaggedAddr: {Tier: intel.TierHigh, Tag: "scam"},
	})
	svc := newTestService(t, &stubFetcher{}, []intel.Provider{provider})
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/threat/"+flaggedAddr, nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var v intel.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, intel.TierHigh, v.Tier)
}

func TestHistoryWithoutStore(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, nil)
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/history", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHistoryPagination(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveReport(context.Background(), &Report{
			ID:          fmt.Sprintf("rpt_%d", i),
			Address:     subjectAddr,
			GeneratedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	svc := newTestService(t, &stubFetcher{}, nil, WithStore(store))
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/history?limit=2", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Reports    []*Report `json:"reports"`
		Count      int       `json:"count"`
		NextCursor string    `json:"nextCursor"`
		HasMore    bool      `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Equal(t, 2, page.Count)
	assert.Equal(t, "rpt_2", page.Reports[0].ID, "newest first")
	require.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/history?limit=2&cursor="+page.NextCursor, nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, "rpt_0", page.Reports[0].ID)
	assert.False(t, page.HasMore)
}

func TestHistoryRejectsBadCursor(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, nil, WithStore(NewMemoryStore()))
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/history?cursor=%21%21", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_cursor")
}

func TestAssessmentsWithoutStore(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, nil)
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/assessments", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestAssessmentsEndpoint(t *testing.T) {
	store := risk.NewMemoryStore()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(context.Background(), &risk.Assessment{
			ID:          fmt.Sprintf("risk_%d", i),
			Address:     subjectAddr,
			Score:       float64(10 * i),
			Level:       risk.LevelLow,
			Breakdown:   risk.Breakdown{"dustSpam": float64(10 * i)},
			EvaluatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	engine := risk.NewEngine(risk.DefaultLists()).WithStore(store)
	svc := NewService(&stubFetcher{}, engine, intel.NewAggregator(nil))
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/wallets/"+subjectAddr+"/assessments?limit=2", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Address     string             `json:"address"`
		Assessments []*risk.Assessment `json:"assessments"`
		Count       int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Equal(t, 2, page.Count)
	assert.Equal(t, subjectAddr, page.Address)
	assert.Equal(t, "risk_2", page.Assessments[0].ID, "newest first")
	assert.Equal(t, "risk_1", page.Assessments[1].ID)
	assert.Equal(t, risk.Breakdown{"dustSpam": 20}, page.Assessments[0].Breakdown)
}

func TestBatchThreat(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, nil)
	r := newTestRouter(svc)

	body, _ := json.Marshal(BatchRequest{Addresses: []string{subjectAddr, "nothex"}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/threat/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Verdicts []*intel.Verdict `json:"verdicts"`
		Count    int              `json:"count"`
		Invalid  []string         `json:"invalid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Len(t, resp.Invalid, 1)
}

func TestBatchThreatValidation(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, nil)
	r := newTestRouter(svc)

	// Empty address list.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/threat/batch", bytes.NewReader([]byte(`{"addresses":[]}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Over the batch cap.
	addrs := make([]string, 101)
	for i := range addrs {
		addrs[i] = subjectAddr
	}
	body, _ := json.Marshal(BatchRequest{Addresses: addrs})
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/threat/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "too_many_addresses")
}
