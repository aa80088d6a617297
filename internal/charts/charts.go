// Package charts renders distribution, category and correlation charts as PNG or SVG.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	ErrNoData        = errors.New("no data to chart")
	ErrInvalidColor  = errors.New("invalid color")
	ErrUnknownFormat = errors.New("unknown image format")
	ErrUnknownTheme  = errors.New("unknown theme")
	ErrInvalidSize   = errors.New("invalid image size")
)

// Theme selects the background and text colors.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Format is the image encoding of a rendered chart.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// DefaultColor is the bar color used when none is chosen.
const DefaultColor = "#4527A0"

// MaxDimension bounds image width and height in pixels.
const MaxDimension = 4096

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{6}|[0-9a-fA-F]{3})$`)

// viridis samples used for multi-category charts.
var palette = []string{
	"440154", "482878", "3e4989", "31688e", "26828e",
	"1f9e89", "35b779", "6ece58", "b5de2b", "fde725",
}

// Preferences is per-session presentation state. Callers own it and pass it
// explicitly to each render.
type Preferences struct {
	Theme  Theme  `json:"theme"`
	Color  string `json:"color"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DefaultPreferences returns the light theme at 1024x512.
func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeLight, Color: DefaultColor, Width: 1024, Height: 512}
}

// Validate checks theme, color and size, filling zero values with defaults.
func (p *Preferences) Validate() error {
	d := DefaultPreferences()
	if p.Theme == "" {
		p.Theme = d.Theme
	}
	if p.Theme != ThemeLight && p.Theme != ThemeDark {
		return fmt.Errorf("%w: %q (use light or dark)", ErrUnknownTheme, p.Theme)
	}
	if p.Color == "" {
		p.Color = d.Color
	}
	if !hexColor.MatchString(p.Color) {
		return fmt.Errorf("%w: %q", ErrInvalidColor, p.Color)
	}
	if p.Width <= 0 {
		p.Width = d.Width
	}
	if p.Height <= 0 {
		p.Height = d.Height
	}
	if p.Width > MaxDimension || p.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrInvalidSize, p.Width, p.Height, MaxDimension, MaxDimension)
	}
	return nil
}

// ParseFormat maps png/svg (case-insensitive) to a Format. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatSVG:
		return FormatSVG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Image is an encoded chart.
type Image struct {
	Format      Format
	ContentType string
	Data        []byte
}

func (p Preferences) background() chart.Style {
	if p.Theme == ThemeDark {
		return chart.Style{FillColor: drawing.ColorFromHex("0e1117"), FontColor: drawing.ColorFromHex("fafafa")}
	}
	return chart.Style{FillColor: drawing.ColorWhite, FontColor: drawing.ColorFromHex("262730")}
}

func (p Preferences) fontColor() drawing.Color { return p.background().FontColor }

func encode(f Format, render func(chart.RendererProvider, *bytes.Buffer) error) (*Image, error) {
	var buf bytes.Buffer
	img := &Image{Format: f}
	switch f {
	case FormatPNG, "":
		img.Format, img.ContentType = FormatPNG, "image/png"
		if err := render(chart.PNG, &buf); err != nil {
			return nil, fmt.Errorf("render png: %w", err)
		}
	case FormatSVG:
		img.ContentType = "image/svg+xml"
		if err := render(chart.SVG, &buf); err != nil {
			return nil, fmt.Errorf("render svg: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	img.Data = buf.Bytes()
	return img, nil
}

// Histogram bins values and draws one bar per bin in the preferred color.
// bins <= 0 picks a bin count with Sturges' rule.
func Histogram(title string, values []float64, bins int, p Preferences, f Format) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	hist := Bins(values, bins)
	if len(hist) == 0 {
		return nil, ErrNoData
	}
	fill := drawing.ColorFromHex(strings.TrimPrefix(p.Color, "#"))
	bars := make([]chart.Value, len(hist))
	top := 0.0
	for i, b := range hist {
		bars[i] = chart.Value{
			Label: fmt.Sprintf("%.4g", (b.Lo+b.Hi)/2),
			Value: float64(b.Count),
			Style: chart.Style{FillColor: fill, StrokeColor: fill},
		}
		top = math.Max(top, float64(b.Count))
	}
	bc := barChart(title, bars, top, p)
	return encode(f, func(rp chart.RendererProvider, buf *bytes.Buffer) error { return bc.Render(rp, buf) })
}

// CategoryBars draws one bar per category row, colored from the palette.
func CategoryBars(title string, rows []analysis.CategoryFrequency, p Preferences, f Format) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	bars := make([]chart.Value, len(rows))
	top := 0.0
	for i, r := range rows {
		c := paletteColor(i, len(rows))
		bars[i] = chart.Value{Label: r.Value, Value: float64(r.Count), Style: chart.Style{FillColor: c, StrokeColor: c}}
		top = math.Max(top, float64(r.Count))
	}
	bc := barChart(title, bars, top, p)
	return encode(f, func(rp chart.RendererProvider, buf *bytes.Buffer) error { return bc.Render(rp, buf) })
}

// CategoryPie draws a pie with one slice per category row labeled with its percent.
func CategoryPie(title string, rows []analysis.CategoryFrequency, p Preferences, f Format) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	vals := make([]chart.Value, len(rows))
	for i, r := range rows {
		c := paletteColor(i, len(rows))
		vals[i] = chart.Value{
			Label: fmt.Sprintf("%s (%.1f%%)", r.Value, r.Percent),
			Value: float64(r.Count),
			Style: chart.Style{FillColor: c, StrokeColor: drawing.ColorWhite, FontColor: drawing.ColorWhite},
		}
	}
	pc := chart.PieChart{
		Title:      title,
		TitleStyle: chart.Style{FontColor: p.fontColor()},
		Width:      p.Height,
		Height:     p.Height,
		Background: p.background(),
		Canvas:     p.background(),
		Values:     vals,
	}
	return encode(f, func(rp chart.RendererProvider, buf *bytes.Buffer) error { return pc.Render(rp, buf) })
}

func barChart(title string, bars []chart.Value, top float64, p Preferences) chart.BarChart {
	if top <= 0 {
		top = 1
	}
	width := 0
	if n := len(bars); n > 0 {
		width = (p.Width-120)/n - 10
	}
	if width < 4 {
		width = 4
	}
	return chart.BarChart{
		Title:      title,
		TitleStyle: chart.Style{FontColor: p.fontColor()},
		Width:      p.Width,
		Height:     p.Height,
		BarWidth:   width,
		Background: chart.Style{
			Padding:   chart.Box{Top: 40},
			FillColor: p.background().FillColor,
		},
		Canvas: p.background(),
		XAxis:  chart.Style{FontColor: p.fontColor()},
		YAxis: chart.YAxis{
			Style: chart.Style{FontColor: p.fontColor()},
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
		},
		Bars: bars,
	}
}

// paletteColor spreads n categories evenly over the palette.
func paletteColor(i, n int) drawing.Color {
	idx := 0
	if n > 1 {
		idx = int(math.Round(float64(i) * float64(len(palette)-1) / float64(n-1)))
	}
	return drawing.ColorFromHex(palette[idx])
}

// Bin is one half-open histogram interval; the last bin is closed.
type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// Bins splits values into equal-width intervals over [min, max].
func Bins(values []float64, bins int) []Bin {
	var clean []float64
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	if bins <= 0 {
		bins = int(math.Ceil(math.Log2(float64(len(clean))))) + 1
	}
	if bins > 50 {
		bins = 50
	}
	lo, hi := clean[0], clean[0]
	for _, v := range clean {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if lo == hi {
		return []Bin{{Lo: lo - 0.5, Hi: hi + 0.5, Count: len(clean)}}
	}
	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lo: lo + float64(i)*width, Hi: lo + float64(i+1)*width}
	}
	out[bins-1].Hi = hi
	for _, v := range clean {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}
