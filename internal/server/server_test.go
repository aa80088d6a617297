package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/narrative"
	"github.com/KaramelBytes/datalens/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const salesCSV = "region,units,price,returned\nnorth,10,2.5,false\nsouth,12,2.0,true\nnorth,7,3.1,false\neast,,2.8,false\nnorth,10,2.5,false\n"

type fakeNarrator struct {
	text     string
	err      error
	question string
}

func (f *fakeNarrator) Summarize(_ context.Context, s *analysis.Summary, q string) (string, error) {
	f.question = q
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s (%d rows)", f.text, s.Rows), nil
}

func newTestServer(t *testing.T, n Narrator) (*Server, http.Handler) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	s := New(st, Options{Narrator: n, MaxUploadBytes: 1 << 20}, zap.NewNop())
	return s, s.Handler()
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func upload(t *testing.T, h http.Handler, name, content string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, name, content))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Dataset store.Entry `json:"dataset"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Dataset.ID
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := get(h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUploadAndSummary(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "sales.csv", salesCSV)

	rec := get(h, "/api/datasets/"+id+"/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum analysis.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Equal(t, 5, sum.Rows)
	assert.Equal(t, 4, sum.Columns)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 1, sum.TotalMissing)

	rec = get(h, "/api/datasets")
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Total)
}

func TestUploadParseFailureStoresNothing(t *testing.T) {
	s, h := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "bad.csv", "a,b\n1,2,3\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "parse_failure", decodeError(t, rec))

	entries, err := s.store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadMissingFile(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/datasets", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_file", decodeError(t, rec))
}

func TestUnknownAndInvalidIDs(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := get(h, "/api/datasets/2f1b7a3c-6a0e-4d8e-9a34-1c2b3d4e5f60/report")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec))

	rec = get(h, "/api/datasets/nope/summary")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeError(t, rec))
}

func TestReportSectionsAreIsolated(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "one-numeric.csv", "city,temp\noslo,3\nbergen,5\noslo,4\n")

	rec := get(h, "/api/datasets/"+id+"/report?top=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var report ReportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))

	assert.NotNil(t, report.Summary.Data)
	assert.NotNil(t, report.Describe.Data)
	assert.Nil(t, report.Correlation.Data)
	assert.Equal(t, "insufficient_columns", report.Correlation.Error)
	assert.NotEmpty(t, report.Correlation.Message)
	require.NotNil(t, report.Categories.Data)
	cats := report.Categories.Data.(map[string]any)
	assert.Equal(t, "city", cats["column"])
	assert.NotNil(t, report.Export.Data)
	assert.Equal(t, id, report.Dataset.ID)
}

func TestCorrelationAndCategories(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "sales.csv", salesCSV)

	rec := get(h, "/api/datasets/"+id+"/correlation?columns=units,price&method=spearman")
	require.Equal(t, http.StatusOK, rec.Code)
	var corr analysis.Correlation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&corr))
	assert.Equal(t, analysis.MethodSpearman, corr.Matrix.Method)
	assert.Equal(t, []string{"units", "price"}, corr.Matrix.Columns)

	rec = get(h, "/api/datasets/"+id+"/correlation?method=cosine")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_method", decodeError(t, rec))

	rec = get(h, "/api/datasets/"+id+"/categories?column=region")
	require.Equal(t, http.StatusOK, rec.Code)
	var cats CategoriesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cats))
	require.NotEmpty(t, cats.Rows)
	assert.Equal(t, "north", cats.Rows[0].Value)
	assert.Equal(t, 3, cats.Rows[0].Count)

	rec = get(h, "/api/datasets/"+id+"/categories?column=missing")
	assert.Equal(t, "column_not_found", decodeError(t, rec))
	rec = get(h, "/api/datasets/"+id+"/categories?top=many")
	assert.Equal(t, "invalid_parameter", decodeError(t, rec))
}

func TestExport(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "sales.csv", salesCSV)

	rec := get(h, "/api/datasets/"+id+"/export?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="sales_processed.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "region,units,price,returned\n"))

	rec = get(h, "/api/datasets/"+id+"/export?format=excel")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sales_processed.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = get(h, "/api/datasets/"+id+"/export?format=parquet")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_format", decodeError(t, rec))
}

func TestCharts(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "sales.csv", salesCSV)

	rec := get(h, "/api/datasets/"+id+"/charts/histogram?column=price&format=svg&theme=dark")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))

	rec = get(h, "/api/datasets/"+id+"/charts/histogram?column=region")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "not_numeric", decodeError(t, rec))

	rec = get(h, "/api/datasets/"+id+"/charts/histogram?column=price&color=teal")
	assert.Equal(t, "invalid_chart_options", decodeError(t, rec))

	rec = get(h, "/api/datasets/"+id+"/charts/categories?column=region&kind=pie")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = get(h, "/api/datasets/"+id+"/charts/categories?kind=donut")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func postNarrative(h http.Handler, id, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/datasets/"+id+"/narrative", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestNarrative(t *testing.T) {
	n := &fakeNarrator{text: "Mostly north"}
	_, h := newTestServer(t, n)
	id := upload(t, h, "sales.csv", salesCSV)

	rec := postNarrative(h, id, `{"question":"Where do units go?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp NarrativeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Mostly north (5 rows)", resp.Text)
	assert.Equal(t, "Where do units go?", n.question)

	n.err = fmt.Errorf("%w: %w", narrative.ErrServiceUnavailable, errors.New("quota exceeded"))
	rec = postNarrative(h, id, `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service_unavailable", decodeError(t, rec))

	rec = postNarrative(h, id, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNarrativeWithoutProvider(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "sales.csv", salesCSV)
	rec := postNarrative(h, id, `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open local listener: %v", err)
	}
	s, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNonFiniteCellsKeepReportEncodable(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "inf.csv", "v,w\n1,2\ninf,3\n3,4\n")

	rec := get(h, "/api/datasets/"+id+"/report")
	require.Equal(t, http.StatusOK, rec.Code)
	var report ReportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.NotNil(t, report.Summary.Data)
	assert.NotNil(t, report.Correlation.Data)
}

func TestWriteJSONEncodingFailureIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	require.Error(t, WriteJSON(rec, http.StatusOK, map[string]float64{"x": math.Inf(1)}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec))
}

func TestChartSizeIsBounded(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "sales.csv", salesCSV)

	rec := get(h, "/api/datasets/"+id+"/charts/histogram?column=price&width=50000&height=50000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_chart_options", decodeError(t, rec))
}

func TestDistributionAndHeatmapCharts(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "sales.csv", salesCSV)

	rec := get(h, "/api/datasets/"+id+"/charts/box?column=price&format=svg")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))

	rec = get(h, "/api/datasets/"+id+"/charts/violin?column=units")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = get(h, "/api/datasets/"+id+"/charts/box?column=region")
	assert.Equal(t, "not_numeric", decodeError(t, rec))

	rec = get(h, "/api/datasets/"+id+"/charts/heatmap?method=kendall&colormap=viridis&format=svg")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "kendall")

	rec = get(h, "/api/datasets/"+id+"/charts/heatmap?colormap=jet")
	assert.Equal(t, "invalid_chart_options", decodeError(t, rec))
}

func TestDeleteDataset(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := upload(t, h, "sales.csv", salesCSV)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/datasets/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = get(h, "/api/datasets/"+id+"/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/datasets/"+id, nil))
	assert.Equal(t, "not_found", decodeError(t, rec))
}
