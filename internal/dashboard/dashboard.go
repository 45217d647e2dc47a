// Package dashboard turns an analysis result into a complete, immutable
// description of the results view: stat cards and three chart specs. Every
// call to Build produces a fresh value; nothing is patched in place.
package dashboard

import (
	"fmt"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"pca-viewer/internal/pca"
)

// ChartName identifies one of the three charts.
type ChartName string

const (
	ChartScatter      ChartName = "scatter"
	ChartContribution ChartName = "contribution"
	ChartCumulative   ChartName = "cumulative"
)

// ChartNames lists the charts in page order.
var ChartNames = []ChartName{ChartScatter, ChartContribution, ChartCumulative}

// Title is the heading shown above the chart.
func (n ChartName) Title() string {
	switch n {
	case ChartScatter:
		return "PCA Projection (PC1 vs PC2)"
	case ChartContribution:
		return "Variance Explained by Component"
	case ChartCumulative:
		return "Cumulative Variance Explained"
	}
	return string(n)
}

// ParseChartName validates a chart name from a URL.
func ParseChartName(raw string) (ChartName, bool) {
	for _, n := range ChartNames {
		if string(n) == raw {
			return n, true
		}
	}
	return "", false
}

const (
	barColor        = "#3b82f6"
	cumulativeColor = "#16a34a"
	colorScale      = "Viridis"
	colorbarTitle   = "Timestep Index"
	componentTitle  = "Principal Component"
)

// StatCard is one headline number.
type StatCard struct {
	Value   string `json:"value"`
	Caption string `json:"caption"`
}

// Axis describes one chart axis. A nil Range lets the renderer fit the data.
type Axis struct {
	Title string      `json:"title"`
	Range *[2]float64 `json:"range,omitempty"`
}

// ScatterPoint is one marker of the projection chart.
type ScatterPoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Label      string  `json:"label"`
	ColorValue int     `json:"colorValue"`
	Color      string  `json:"color"`
	HoverText  string  `json:"hoverText"`
}

// ScatterChart is the 2D PC1/PC2 projection colored by ordinal index.
type ScatterChart struct {
	XAxis         Axis           `json:"xAxis"`
	YAxis         Axis           `json:"yAxis"`
	ColorScale    string         `json:"colorScale"`
	ColorbarTitle string         `json:"colorbarTitle"`
	MarkerSize    int            `json:"markerSize"`
	Points        []ScatterPoint `json:"points"`
}

// Category is one labelled value of a per-component chart.
type Category struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// BarChart shows the explained variance ratio of each component.
type BarChart struct {
	XAxis Axis       `json:"xAxis"`
	YAxis Axis       `json:"yAxis"`
	Color string     `json:"color"`
	Bars  []Category `json:"bars"`
}

// LineChart shows the cumulative variance ratio as lines plus markers.
type LineChart struct {
	XAxis      Axis       `json:"xAxis"`
	YAxis      Axis       `json:"yAxis"`
	Color      string     `json:"color"`
	MarkerSize int        `json:"markerSize"`
	LineWidth  int        `json:"lineWidth"`
	Points     []Category `json:"points"`
}

// Dashboard is the full results view for one analysis.
type Dashboard struct {
	Stats        pca.Stats            `json:"stats"`
	Cards        []StatCard           `json:"cards"`
	Spread       pca.CoordinateSpread `json:"spread"`
	Scatter      ScatterChart         `json:"scatter"`
	Contribution BarChart             `json:"contribution"`
	Cumulative   LineChart            `json:"cumulative"`
}

// Build describes the results view for r.
func Build(r pca.Result) Dashboard {
	stats := pca.Summarize(r)
	return Dashboard{
		Stats: stats,
		Cards: []StatCard{
			{Value: stats.PointCountText(), Caption: "Data Points"},
			{Value: stats.PC1Text(), Caption: "PC1 Variance"},
			{Value: stats.PC2Text(), Caption: "PC2 Variance"},
			{Value: stats.CumulativeText(), Caption: "PC1+PC2 Cum. Var."},
		},
		Spread:       pca.Spread(r),
		Scatter:      buildScatter(r),
		Contribution: buildContribution(r),
		Cumulative:   buildCumulative(r),
	}
}

func buildScatter(r pca.Result) ScatterChart {
	n := len(r.Points)
	points := make([]ScatterPoint, 0, n)
	for i, p := range r.Points {
		points = append(points, ScatterPoint{
			X:          p.X,
			Y:          p.Y,
			Label:      p.Label,
			ColorValue: i,
			Color:      hexColor(indexColor(i, n)),
			HoverText:  HoverText(p),
		})
	}
	return ScatterChart{
		XAxis:         Axis{Title: axisTitle(1, r.ExplainedAt(0))},
		YAxis:         Axis{Title: axisTitle(2, r.ExplainedAt(1))},
		ColorScale:    colorScale,
		ColorbarTitle: colorbarTitle,
		MarkerSize:    12,
		Points:        points,
	}
}

func buildContribution(r pca.Result) BarChart {
	return BarChart{
		XAxis: Axis{Title: componentTitle},
		YAxis: Axis{Title: "Explained Variance Ratio"},
		Color: barColor,
		Bars:  categories(r.ExplainedVarianceRatio),
	}
}

func buildCumulative(r pca.Result) LineChart {
	return LineChart{
		XAxis:      Axis{Title: componentTitle},
		YAxis:      Axis{Title: "Cumulative Variance Ratio", Range: &[2]float64{0, 1.1}},
		Color:      cumulativeColor,
		MarkerSize: 8,
		LineWidth:  3,
		Points:     categories(r.CumulativeVarianceRatio),
	}
}

// ComponentLabel names component i (0-based) as PC1, PC2, ...
func ComponentLabel(i int) string {
	return "PC" + strconv.Itoa(i+1)
}

// HoverText is the plain-text tooltip shown for a point, one line each for
// the label and both coordinates.
func HoverText(p pca.Point) string {
	return fmt.Sprintf("%s\nPC1: %.3f\nPC2: %.3f", p.Label, p.X, p.Y)
}

func categories(vals []float64) []Category {
	out := make([]Category, 0, len(vals))
	for i, v := range vals {
		out = append(out, Category{Label: ComponentLabel(i), Value: v})
	}
	return out
}

func axisTitle(component int, ratio float64) string {
	return fmt.Sprintf("PC%d (%.2f%%)", component, ratio*100)
}

// indexColor maps ordinal i of n onto the Viridis scale.
func indexColor(i, n int) drawing.Color {
	hi := float64(n - 1)
	if hi <= 0 {
		hi = 1
	}
	return chart.Viridis(float64(i), 0, hi)
}

func hexColor(c drawing.Color) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
