package dashboard

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"pca-viewer/internal/pca"
)

// Format selects the image encoding of a rendered chart.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ParseFormat accepts "png" or "svg" in any case.
func ParseFormat(raw string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatPNG:
		return FormatPNG, true
	case FormatSVG:
		return FormatSVG, true
	}
	return "", false
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// ParseChartFile splits a file name such as "scatter.svg" into the chart and
// its format.
func ParseChartFile(file string) (ChartName, Format, bool) {
	base, ext, ok := strings.Cut(file, ".")
	if !ok {
		return "", "", false
	}
	name, ok := ParseChartName(base)
	if !ok {
		return "", "", false
	}
	format, ok := ParseFormat(ext)
	if !ok {
		return "", "", false
	}
	return name, format, true
}

// FileName is the file name a chart is served under.
func (n ChartName) FileName(f Format) string {
	return string(n) + "." + string(f)
}

var (
	// ErrUnknownChart is returned for a chart name outside ChartNames.
	ErrUnknownChart = errors.New("unknown chart")
	// ErrEmptyChart is returned when a chart has nothing to draw.
	ErrEmptyChart = errors.New("chart has no data")
)

// Pixel size of every rendered chart.
const (
	ChartWidth  = 800
	ChartHeight = 480
)

func (f Format) provider() chart.RendererProvider {
	if f == FormatSVG {
		return chart.SVG
	}
	return chart.PNG
}

// RenderChart draws the named chart of d to w.
func RenderChart(d Dashboard, name ChartName, format Format, w io.Writer) error {
	switch name {
	case ChartScatter:
		return renderScatter(d.Scatter, d.Spread, format, w)
	case ChartContribution:
		return renderContribution(d.Contribution, format, w)
	case ChartCumulative:
		return renderCumulative(d.Cumulative, format, w)
	}
	return fmt.Errorf("%w: %q", ErrUnknownChart, name)
}

// HasData reports whether the named chart has anything to draw.
func (d Dashboard) HasData(name ChartName) bool {
	switch name {
	case ChartScatter:
		return len(d.Scatter.Points) > 0
	case ChartContribution:
		return len(d.Contribution.Bars) > 0
	case ChartCumulative:
		return len(d.Cumulative.Points) > 0
	}
	return false
}

const (
	colorbarSteps = 32
	colorbarWidth = 160
)

func renderScatter(s ScatterChart, spread pca.CoordinateSpread, format Format, w io.Writer) error {
	if len(s.Points) == 0 {
		return ErrEmptyChart
	}
	xr, yr := scatterRanges(s, spread)
	ch := scatterChart(s, xr, yr)
	return ch.Render(format.provider(), w)
}

// Hotspot is where one scatter point lands on the rendered image, in image
// pixels, with the text to show when hovering it.
type Hotspot struct {
	X    int
	Y    int
	R    int
	Text string
}

// ScatterHotspots lays out the scatter chart of d and reports the position of
// every point, so a page can overlay hover targets on the image.
func ScatterHotspots(d Dashboard) ([]Hotspot, error) {
	s := d.Scatter
	if len(s.Points) == 0 {
		return nil, ErrEmptyChart
	}
	xr, yr := scatterRanges(s, d.Spread)
	ch := scatterChart(s, xr, yr)

	spots := make([]Hotspot, 0, len(s.Points))
	radius := int(math.Ceil(dotRadius(s))) + 2
	ch.Elements = append(ch.Elements, func(_ chart.Renderer, box chart.Box, _ chart.Style) {
		x := chart.ContinuousRange{Min: xr.Min, Max: xr.Max, Domain: box.Width()}
		y := chart.ContinuousRange{Min: yr.Min, Max: yr.Max, Domain: box.Height()}
		for _, p := range s.Points {
			spots = append(spots, Hotspot{
				X:    box.Left + x.Translate(p.X),
				Y:    box.Bottom - y.Translate(p.Y),
				R:    radius,
				Text: p.HoverText,
			})
		}
	})
	if err := ch.Render(chart.SVG, io.Discard); err != nil {
		return nil, err
	}
	return spots, nil
}

// scatterRanges takes the axis extents from the coordinate spread.
func scatterRanges(s ScatterChart, spread pca.CoordinateSpread) (*chart.ContinuousRange, *chart.ContinuousRange) {
	return paddedRange(spread.PC1.Min, spread.PC1.Max, s.XAxis.Range),
		paddedRange(spread.PC2.Min, spread.PC2.Max, s.YAxis.Range)
}

func scatterChart(s ScatterChart, xr, yr *chart.ContinuousRange) chart.Chart {
	xs := make([]float64, len(s.Points))
	ys := make([]float64, len(s.Points))
	colors := make([]drawing.Color, len(s.Points))
	for i, p := range s.Points {
		xs[i] = p.X
		ys[i] = p.Y
		colors[i] = drawing.ColorFromHex(strings.TrimPrefix(p.Color, "#"))
	}

	return chart.Chart{
		Title:  "PCA Projection",
		Width:  ChartWidth,
		Height: ChartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 80, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{Name: s.XAxis.Title, Range: xr},
		YAxis: chart.YAxis{Name: s.YAxis.Title, Range: yr},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "points",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    dotRadius(s),
					DotColorProvider: func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
						return colors[index]
					},
				},
			},
		},
		Elements: []chart.Renderable{colorbar(s.ColorbarTitle, len(s.Points))},
	}
}

func dotRadius(s ScatterChart) float64 {
	return float64(s.MarkerSize) / 2
}

// colorbar draws the index legend above the plot: the title, then a Viridis
// strip running from 0 to n-1.
func colorbar(title string, n int) chart.Renderable {
	return func(r chart.Renderer, box chart.Box, defaults chart.Style) {
		text := chart.Style{Font: defaults.Font, FontSize: 9, FontColor: chart.DefaultTextColor}
		lo, hi := "0", strconv.Itoa(max(n-1, 0))

		top := box.Top - 24
		bottom := top + 10
		left := box.Left + chart.Draw.MeasureText(r, lo, text).Width() + 6

		chart.Draw.Text(r, title, box.Left, top-6, text)
		chart.Draw.Text(r, lo, box.Left, bottom, text)
		step := float64(colorbarWidth) / colorbarSteps
		for k := 0; k < colorbarSteps; k++ {
			c := indexColor(k, colorbarSteps)
			chart.Draw.Box(r, chart.Box{
				Top:    top,
				Left:   left + int(float64(k)*step),
				Right:  left + int(float64(k+1)*step),
				Bottom: bottom,
			}, chart.Style{FillColor: c, StrokeColor: c, StrokeWidth: 1})
		}
		chart.Draw.Text(r, hi, left+colorbarWidth+6, bottom, text)
	}
}

func renderContribution(b BarChart, format Format, w io.Writer) error {
	if len(b.Bars) == 0 {
		return ErrEmptyChart
	}
	color := drawing.ColorFromHex(strings.TrimPrefix(b.Color, "#"))
	bars := make([]chart.Value, 0, len(b.Bars))
	top := 0.0
	for _, c := range b.Bars {
		bars = append(bars, chart.Value{
			Label: c.Label,
			Value: c.Value,
			Style: chart.Style{FillColor: color, StrokeColor: color},
		})
		top = math.Max(top, c.Value)
	}
	if top <= 0 {
		top = 1
	}

	bc := chart.BarChart{
		Title:  b.YAxis.Title + " by " + b.XAxis.Title,
		Width:  ChartWidth,
		Height: ChartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 50},
		},
		BarWidth: barWidth(len(bars)),
		YAxis: chart.YAxis{
			Name:  b.YAxis.Title,
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
		},
		Bars: bars,
	}
	return bc.Render(format.provider(), w)
}

func renderCumulative(l LineChart, format Format, w io.Writer) error {
	if len(l.Points) == 0 {
		return ErrEmptyChart
	}
	color := drawing.ColorFromHex(strings.TrimPrefix(l.Color, "#"))
	xs := make([]float64, len(l.Points))
	ys := make([]float64, len(l.Points))
	ticks := make([]chart.Tick, len(l.Points))
	for i, p := range l.Points {
		xs[i] = float64(i + 1)
		ys[i] = p.Value
		ticks[i] = chart.Tick{Value: xs[i], Label: p.Label}
	}

	ch := chart.Chart{
		Title:  l.YAxis.Title,
		Width:  ChartWidth,
		Height: ChartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  l.XAxis.Title,
			Range: &chart.ContinuousRange{Min: 0.5, Max: float64(len(l.Points)) + 0.5},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:  l.YAxis.Title,
			Range: paddedRange(0, 1, l.YAxis.Range),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "cumulative",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: color,
					StrokeWidth: float64(l.LineWidth),
					DotColor:    color,
					DotWidth:    float64(l.MarkerSize) / 2,
				},
			},
		},
	}
	return ch.Render(format.provider(), w)
}

// paddedRange uses the fixed range when given, otherwise pads [lo, hi] so a
// single value or a flat series still has a non-zero span.
func paddedRange(lo, hi float64, fixed *[2]float64) *chart.ContinuousRange {
	if fixed != nil {
		return &chart.ContinuousRange{Min: fixed[0], Max: fixed[1]}
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func barWidth(n int) int {
	w := (ChartWidth - 100) / (n * 2)
	if w > 80 {
		return 80
	}
	if w < 4 {
		return 4
	}
	return w
}
