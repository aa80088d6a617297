package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/charts"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/export"
	"github.com/KaramelBytes/datalens/internal/store"
	"go.uber.org/zap"
)

// UploadResponse for POST /api/datasets
type UploadResponse struct {
	Dataset *store.Entry      `json:"dataset"`
	Summary *analysis.Summary `json:"summary"`
}

// ListResponse for GET /api/datasets
type ListResponse struct {
	Datasets []*store.Entry `json:"datasets"`
	Total    int            `json:"total"`
}

// CategoriesResponse for GET /api/datasets/{id}/categories
type CategoriesResponse struct {
	Column string                       `json:"column"`
	Rows   []analysis.CategoryFrequency `json:"rows"`
}

// NarrativeRequest for POST /api/datasets/{id}/narrative
type NarrativeRequest struct {
	Question string `json:"question"`
}

// NarrativeResponse for POST /api/datasets/{id}/narrative
type NarrativeResponse struct {
	Text string `json:"text"`
}

// ReportResponse for GET /api/datasets/{id}/report. Every section is computed
// on its own; a failed section carries its error and the rest still render.
type ReportResponse struct {
	Dataset     *store.Entry `json:"dataset"`
	Summary     Section      `json:"summary"`
	Describe    Section      `json:"describe"`
	Correlation Section      `json:"correlation"`
	Categories  Section      `json:"categories"`
	Export      Section      `json:"export"`
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= 500 {
		s.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		s.logger.Error("failed to write error response", zap.Error(werr))
	}
}

func (s *Server) write(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) load(r *http.Request) (*dataset.Dataset, *store.Entry, error) {
	return s.store.Load(r.PathValue("id"), s.opts.Parse)
}

// splitList parses a comma-separated query value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadParam, name)
	}
	return n, nil
}

var errBadParam = errors.New("invalid query parameter")

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.write(w, http.StatusOK, map[string]string{"status": "ok"})
}

// List returns stored datasets, newest first.
func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []*store.Entry{}
	}
	s.write(w, http.StatusOK, ListResponse{Datasets: entries, Total: len(entries)})
}

// Upload accepts a multipart "file" field. The file is parsed before it is
// stored, so a parse failure leaves nothing behind.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			_ = ErrorResponse(w, http.StatusRequestEntityTooLarge, "upload_too_large",
				fmt.Sprintf("upload exceeds %d bytes", s.opts.MaxUploadBytes))
			return
		}
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_file", "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "read_failure", err.Error())
		return
	}
	ds, err := dataset.Parse(hdr.Filename, bytes.NewReader(raw), s.opts.Parse)
	if err != nil {
		s.logger.Info("rejected upload", zap.String("name", hdr.Filename), zap.Error(err))
		s.fail(w, err)
		return
	}
	entry, err := s.store.Save(hdr.Filename, raw)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("stored dataset",
		zap.String("id", entry.ID),
		zap.String("name", entry.Name),
		zap.Int("rows", ds.Rows()),
		zap.Int("columns", len(ds.Columns())),
	)
	s.write(w, http.StatusCreated, UploadResponse{Dataset: entry, Summary: analysis.Summarize(ds)})
}

// Delete removes a stored dataset.
func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(id); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("deleted dataset", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Summary returns the dataset summary.
func (s *Server) Summary(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, analysis.Summarize(ds))
}

// Describe returns the per-column statistics table.
func (s *Server) Describe(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	t, err := analysis.Describe(ds)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, t)
}

func correlate(ds *dataset.Dataset, r *http.Request) (*analysis.Correlation, error) {
	q := r.URL.Query()
	method, err := analysis.ParseMethod(q.Get("method"))
	if err != nil {
		return nil, err
	}
	return analysis.Correlate(ds, splitList(q.Get("columns")), method)
}

// Correlation returns the coefficient matrix and notable pairs.
func (s *Server) Correlation(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	c, err := correlate(ds, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, c)
}

// defaultCategoryColumn picks the first text or boolean column.
func defaultCategoryColumn(ds *dataset.Dataset) (string, error) {
	cats := ds.CategoricalColumns()
	if len(cats) == 0 {
		return "", fmt.Errorf("%w: dataset has no categorical columns", analysis.ErrInsufficientColumns)
	}
	return cats[0].Name, nil
}

func categories(ds *dataset.Dataset, r *http.Request) (*CategoriesResponse, error) {
	column := strings.TrimSpace(r.URL.Query().Get("column"))
	if column == "" {
		var err error
		if column, err = defaultCategoryColumn(ds); err != nil {
			return nil, err
		}
	}
	top, err := intParam(r, "top")
	if err != nil {
		return nil, err
	}
	rows, err := analysis.TopCategories(ds, column, top)
	if err != nil {
		return nil, err
	}
	return &CategoriesResponse{Column: column, Rows: rows}, nil
}

// Categories returns the top-N frequency table of one column.
func (s *Server) Categories(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	c, err := categories(ds, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, c)
}

// Report computes every section independently. Only failing to load the
// dataset fails the whole request.
func (s *Server) Report(w http.ResponseWriter, r *http.Request) {
	ds, entry, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := ReportResponse{Dataset: entry}
	resp.Summary = section(analysis.Summarize(ds), nil)
	resp.Describe = section(analysis.Describe(ds))
	resp.Correlation = section(correlate(ds, r))
	resp.Categories = section(categories(ds, r))
	resp.Export = section(map[string]any{"formats": s.serializer.Formats()}, nil)
	s.write(w, http.StatusOK, resp)
}

// Export downloads the dataset in the requested format.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	f, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.serializer.Export(ds, f)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	if _, err := w.Write(p.Data); err != nil {
		s.logger.Warn("export write interrupted", zap.Error(err))
	}
}

// preferences reads theme, color, width and height from the query.
func preferences(r *http.Request) (charts.Preferences, charts.Format, error) {
	q := r.URL.Query()
	p := charts.Preferences{Theme: charts.Theme(strings.ToLower(q.Get("theme"))), Color: q.Get("color")}
	var err error
	if p.Width, err = intParam(r, "width"); err != nil {
		return p, "", err
	}
	if p.Height, err = intParam(r, "height"); err != nil {
		return p, "", err
	}
	if err := p.Validate(); err != nil {
		return p, "", err
	}
	f, err := charts.ParseFormat(q.Get("format"))
	return p, f, err
}

func (s *Server) writeImage(w http.ResponseWriter, img *charts.Image) {
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(img.Data); err != nil {
		s.logger.Warn("chart write interrupted", zap.Error(err))
	}
}

// HistogramChart renders the distribution of one numeric column.
func (s *Server) HistogramChart(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	prefs, format, err := preferences(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	c, err := ds.Column(r.URL.Query().Get("column"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if !c.Kind.Numeric() {
		s.fail(w, fmt.Errorf("%w: %q is %s", analysis.ErrNotNumeric, c.Name, c.Kind))
		return
	}
	bins, err := intParam(r, "bins")
	if err != nil {
		s.fail(w, err)
		return
	}
	img, err := charts.Histogram(c.Name, c.Floats(), bins, prefs, format)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeImage(w, img)
}

// distributionColumn resolves the numeric "column" query parameter together
// with the chart preferences.
func (s *Server) distributionColumn(w http.ResponseWriter, r *http.Request) (*dataset.Dataset, string, charts.Preferences, charts.Format, bool) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return nil, "", charts.Preferences{}, "", false
	}
	prefs, format, err := preferences(r)
	if err != nil {
		s.fail(w, err)
		return nil, "", prefs, "", false
	}
	return ds, r.URL.Query().Get("column"), prefs, format, true
}

// BoxChart renders quartiles, whiskers and outliers of one numeric column.
func (s *Server) BoxChart(w http.ResponseWriter, r *http.Request) {
	ds, column, prefs, format, ok := s.distributionColumn(w, r)
	if !ok {
		return
	}
	b, err := analysis.Box(ds, column)
	if err != nil {
		s.fail(w, err)
		return
	}
	img, err := charts.BoxPlot(column, b, prefs, format)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeImage(w, img)
}

// ViolinChart renders the estimated density of one numeric column.
func (s *Server) ViolinChart(w http.ResponseWriter, r *http.Request) {
	ds, column, prefs, format, ok := s.distributionColumn(w, r)
	if !ok {
		return
	}
	b, err := analysis.Box(ds, column)
	if err != nil {
		s.fail(w, err)
		return
	}
	density, err := analysis.Density(ds, column, 0)
	if err != nil {
		s.fail(w, err)
		return
	}
	img, err := charts.Violin(column, density, b, prefs, format)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeImage(w, img)
}

// HeatmapChart renders the correlation matrix selected by columns and method.
func (s *Server) HeatmapChart(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	prefs, format, err := preferences(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	cmap, err := charts.ParseColormap(r.URL.Query().Get("colormap"))
	if err != nil {
		s.fail(w, err)
		return
	}
	c, err := correlate(ds, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	title := fmt.Sprintf("Correlation matrix (%s)", c.Matrix.Method)
	img, err := charts.Heatmap(title, c.Matrix, cmap, prefs, format)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeImage(w, img)
}

// CategoryChart renders the top categories of a column as bars or a pie.
func (s *Server) CategoryChart(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	prefs, format, err := preferences(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	cats, err := categories(ds, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var img *charts.Image
	switch kind := strings.ToLower(r.URL.Query().Get("kind")); kind {
	case "", "bar":
		img, err = charts.CategoryBars(cats.Column, cats.Rows, prefs, format)
	case "pie":
		img, err = charts.CategoryPie(cats.Column, cats.Rows, prefs, format)
	default:
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_chart_options", fmt.Sprintf("unknown chart kind %q (use bar or pie)", kind))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeImage(w, img)
}

// Narrative asks the configured model about the dataset.
func (s *Server) Narrative(w http.ResponseWriter, r *http.Request) {
	if s.opts.Narrator == nil {
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "service_unavailable", "no text-generation provider is configured")
		return
	}
	var req NarrativeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "body must be JSON {\"question\": \"...\"}")
			return
		}
	}
	ds, _, err := s.load(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	text, err := s.opts.Narrator.Summarize(r.Context(), analysis.Summarize(ds), req.Question)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, NarrativeResponse{Text: text})
}
