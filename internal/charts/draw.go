package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrUnknownColormap is returned by ParseColormap for unsupported names.
var ErrUnknownColormap = errors.New("unknown colormap")

// Colormap is a named continuous color scale.
type Colormap string

const (
	Coolwarm Colormap = "coolwarm"
	Viridis  Colormap = "viridis"
	Plasma   Colormap = "plasma"
	Inferno  Colormap = "inferno"
	Magma    Colormap = "magma"
	Cividis  Colormap = "cividis"
)

// colormapStops are evenly spaced anchor colors, low to high.
var colormapStops = map[Colormap][]string{
	Coolwarm: {"3b4cc0", "688aef", "99baff", "c9d8ef", "dddddd", "f2c9b4", "f6a385", "e0654f", "b40426"},
	Viridis:  palette,
	Plasma:   {"0d0887", "46039f", "7201a8", "9c179e", "bd3786", "d8576b", "ed7953", "fb9f3a", "fdca26", "f0f921"},
	Inferno:  {"000004", "1b0c41", "4a0c6b", "781c6d", "a52c60", "cf4446", "ed6925", "fb9b06", "f7d13d", "fcffa4"},
	Magma:    {"000004", "180f3d", "440f76", "721f81", "9e2f7f", "cd4071", "f1605d", "fd9668", "feca8d", "fcfdbf"},
	Cividis:  {"00224e", "123570", "3b496c", "575d6d", "707173", "8a8678", "a59c74", "c3b369", "e1cc55", "fee838"},
}

// ParseColormap maps a case-insensitive name to a Colormap. Empty means Coolwarm.
func ParseColormap(s string) (Colormap, error) {
	c := Colormap(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return Coolwarm, nil
	}
	if _, ok := colormapStops[c]; !ok {
		return "", fmt.Errorf("%w: %q (use coolwarm, viridis, plasma, inferno, magma or cividis)", ErrUnknownColormap, s)
	}
	return c, nil
}

// At returns the color at t in [0, 1], interpolating between stops.
func (c Colormap) At(t float64) drawing.Color {
	stops := colormapStops[c]
	if len(stops) == 0 {
		stops = colormapStops[Coolwarm]
	}
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(stops)-1)
	i := int(math.Floor(pos))
	if i >= len(stops)-1 {
		return drawing.ColorFromHex(stops[len(stops)-1])
	}
	a, b := drawing.ColorFromHex(stops[i]), drawing.ColorFromHex(stops[i+1])
	w := pos - float64(i)
	mix := func(x, y uint8) uint8 { return uint8(math.Round(float64(x)*(1-w) + float64(y)*w)) }
	return drawing.Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

// plot is the drawing area inside the margins, with a text style carrying the font.
type plot struct {
	r                        chart.Renderer
	text                     chart.Style
	left, top, right, bottom int
}

// paint renders onto a blank canvas of the preferred size with the title on top.
func paint(title string, p Preferences, f Format, body func(pl *plot)) (*Image, error) {
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	return encode(f, func(rp chart.RendererProvider, buf *bytes.Buffer) error {
		r, err := rp(p.Width, p.Height)
		if err != nil {
			return err
		}
		bg := p.background().FillColor
		chart.Draw.Box(r, chart.NewBox(0, 0, p.Width, p.Height), chart.Style{FillColor: bg, StrokeColor: bg, StrokeWidth: 1})
		pl := &plot{
			r:    r,
			text: chart.Style{Font: font, FontColor: p.fontColor(), FontSize: 10},
			left: 70, top: 50, right: p.Width - 40, bottom: p.Height - 50,
		}
		titleStyle := pl.text
		titleStyle.FontSize = 14
		w := chart.Draw.MeasureText(r, title, titleStyle).Width()
		chart.Draw.Text(r, title, (p.Width-w)/2, 28, titleStyle)
		body(pl)
		return r.Save(buf)
	})
}

func (pl *plot) line(x1, y1, x2, y2 int, c drawing.Color, width float64) {
	pl.r.SetStrokeColor(c)
	pl.r.SetStrokeWidth(width)
	pl.r.MoveTo(x1, y1)
	pl.r.LineTo(x2, y2)
	pl.r.Stroke()
	pl.r.ResetStyle()
}

func (pl *plot) rect(left, top, right, bottom int, fill, stroke drawing.Color) {
	chart.Draw.Box(pl.r, chart.NewBox(top, left, right, bottom), chart.Style{FillColor: fill, StrokeColor: stroke, StrokeWidth: 1})
}

func (pl *plot) dot(x, y int, radius float64, fill, stroke drawing.Color) {
	pl.r.SetFillColor(fill)
	pl.r.SetStrokeColor(stroke)
	pl.r.SetStrokeWidth(1)
	pl.r.Circle(radius, x, y)
	pl.r.FillStroke()
	pl.r.ResetStyle()
}

// label draws s centered on x with its baseline at y.
func (pl *plot) label(s string, x, y int, c drawing.Color) {
	st := pl.text
	st.FontColor = c
	w := chart.Draw.MeasureText(pl.r, s, st).Width()
	chart.Draw.Text(pl.r, s, x-w/2, y, st)
}

// labelRight draws s ending at x with its baseline at y.
func (pl *plot) labelRight(s string, x, y int, c drawing.Color) {
	st := pl.text
	st.FontColor = c
	w := chart.Draw.MeasureText(pl.r, s, st).Width()
	chart.Draw.Text(pl.r, s, x-w, y, st)
}

// xAxis draws a horizontal value axis with five ticks over [lo, hi] and
// returns the value-to-pixel mapping.
func (pl *plot) xAxis(lo, hi float64, name string, c drawing.Color) func(float64) int {
	if hi == lo {
		lo, hi = lo-0.5, hi+0.5
	}
	pad := (hi - lo) * 0.05
	lo, hi = lo-pad, hi+pad
	scale := func(v float64) int {
		return pl.left + int(math.Round((v-lo)/(hi-lo)*float64(pl.right-pl.left)))
	}
	pl.line(pl.left, pl.bottom, pl.right, pl.bottom, c, 1)
	for i := 0; i <= 4; i++ {
		v := lo + (hi-lo)*float64(i)/4
		x := scale(v)
		pl.line(x, pl.bottom, x, pl.bottom+5, c, 1)
		pl.label(fmt.Sprintf("%.4g", v), x, pl.bottom+18, c)
	}
	pl.label(name, (pl.left+pl.right)/2, pl.bottom+36, c)
	return scale
}

// BoxPlot draws a horizontal box with whiskers and outlier markers.
func BoxPlot(title string, b *analysis.BoxStats, p Preferences, f Format) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if b == nil || b.Count == 0 {
		return nil, ErrNoData
	}
	lo, hi := b.LowerWhisker, b.UpperWhisker
	for _, o := range b.Outliers {
		lo, hi = math.Min(lo, o), math.Max(hi, o)
	}
	fill := drawing.ColorFromHex(strings.TrimPrefix(p.Color, "#"))
	ink := p.fontColor()
	return paint(title, p, f, func(pl *plot) {
		x := pl.xAxis(lo, hi, b.Column, ink)
		mid := (pl.top + pl.bottom) / 2
		half := (pl.bottom - pl.top) / 4
		pl.line(x(b.LowerWhisker), mid, x(b.Q1), mid, ink, 1.5)
		pl.line(x(b.Q3), mid, x(b.UpperWhisker), mid, ink, 1.5)
		pl.line(x(b.LowerWhisker), mid-half/2, x(b.LowerWhisker), mid+half/2, ink, 1.5)
		pl.line(x(b.UpperWhisker), mid-half/2, x(b.UpperWhisker), mid+half/2, ink, 1.5)
		pl.rect(x(b.Q1), mid-half, x(b.Q3), mid+half, fill, ink)
		pl.line(x(b.Median), mid-half, x(b.Median), mid+half, ink, 2)
		for _, o := range b.Outliers {
			pl.dot(x(o), mid, 3, p.background().FillColor, ink)
		}
	})
}

// Violin draws the mirrored density curve with the interquartile range and
// median marked inside it.
func Violin(title string, density []analysis.DensityPoint, b *analysis.BoxStats, p Preferences, f Format) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(density) == 0 || b == nil || b.Count == 0 {
		return nil, ErrNoData
	}
	peak := 0.0
	for _, d := range density {
		peak = math.Max(peak, d.Density)
	}
	fill := drawing.ColorFromHex(strings.TrimPrefix(p.Color, "#"))
	ink := p.fontColor()
	return paint(title, p, f, func(pl *plot) {
		x := pl.xAxis(density[0].X, density[len(density)-1].X, b.Column, ink)
		mid := (pl.top + pl.bottom) / 2
		half := float64(pl.bottom-pl.top) / 2.5
		y := func(d float64) int { return int(math.Round(d / peak * half)) }

		pl.r.SetFillColor(fill)
		pl.r.SetStrokeColor(ink)
		pl.r.SetStrokeWidth(1)
		pl.r.MoveTo(x(density[0].X), mid-y(density[0].Density))
		for _, d := range density[1:] {
			pl.r.LineTo(x(d.X), mid-y(d.Density))
		}
		for i := len(density) - 1; i >= 0; i-- {
			pl.r.LineTo(x(density[i].X), mid+y(density[i].Density))
		}
		pl.r.Close()
		pl.r.FillStroke()
		pl.r.ResetStyle()

		pl.line(x(b.LowerWhisker), mid, x(b.UpperWhisker), mid, ink, 1.5)
		pl.rect(x(b.Q1), mid-4, x(b.Q3), mid+4, ink, ink)
		pl.dot(x(b.Median), mid, 3, drawing.ColorWhite, drawing.ColorWhite)
	})
}

// Heatmap draws the lower triangle of a correlation matrix, diagonal
// excluded, with each cell annotated with its coefficient. Colors are
// centered on zero over [-1, 1].
func Heatmap(title string, m analysis.CorrelationMatrix, cmap Colormap, p Preferences, f Format) (*Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(m.Columns)
	if n < 2 {
		return nil, ErrNoData
	}
	if cmap == "" {
		cmap = Coolwarm
	}
	ink := p.fontColor()
	return paint(title, p, f, func(pl *plot) {
		pl.left, pl.right = 120, p.Width-100
		pl.bottom = p.Height - 70
		k := n - 1
		size := min((pl.right-pl.left)/k, (pl.bottom-pl.top)/k)
		if size < 1 {
			size = 1
		}
		for i := 1; i < n; i++ {
			y := pl.top + (i-1)*size
			pl.labelRight(m.Columns[i], pl.left-6, y+size/2+4, ink)
			for j := 0; j < i; j++ {
				v := m.Values[i][j]
				c := cmap.At((v + 1) / 2)
				x := pl.left + j*size
				pl.rect(x, y, x+size, y+size, c, p.background().FillColor)
				pl.label(fmt.Sprintf("%.2f", v), x+size/2, y+size/2+4, textOn(c))
			}
		}
		for j := 0; j < k; j++ {
			pl.label(m.Columns[j], pl.left+j*size+size/2, pl.top+k*size+16, ink)
		}

		bar := pl.left + k*size + 30
		steps := 50
		h := k * size
		for s := 0; s < steps; s++ {
			top := pl.top + s*h/steps
			bottom := pl.top + (s+1)*h/steps
			c := cmap.At(1 - float64(s)/float64(steps-1))
			pl.rect(bar, top, bar+16, bottom, c, c)
		}
		for _, t := range []float64{1, 0, -1} {
			yy := pl.top + int((1-t)/2*float64(h))
			pl.label(fmt.Sprintf("%.0f", t), bar+34, yy+4, ink)
		}
	})
}

// textOn picks white or near-black text for legibility on c.
func textOn(c drawing.Color) drawing.Color {
	lum := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	if lum < 140 {
		return drawing.ColorWhite
	}
	return drawing.ColorFromHex("262730")
}
