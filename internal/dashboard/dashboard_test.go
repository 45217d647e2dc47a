package dashboard

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pca-viewer/internal/pca"
)

func sampleResult() pca.Result {
	return pca.Result{
		Points: []pca.Point{
			{X: 1.5, Y: -0.25, Label: "t0"},
			{X: 0.5, Y: 0.75, Label: "t1"},
			{X: -0.5, Y: 0.1, Label: "t2"},
			{X: -1.0, Y: -0.3, Label: "t3"},
			{X: -0.5, Y: -0.3, Label: "t4"},
		},
		ExplainedVarianceRatio:  []float64{0.6, 0.25, 0.15},
		CumulativeVarianceRatio: []float64{0.6, 0.85, 1.0},
	}
}

func TestBuildCards(t *testing.T) {
	d := Build(sampleResult())
	want := []StatCard{
		{Value: "5", Caption: "Data Points"},
		{Value: "60.0%", Caption: "PC1 Variance"},
		{Value: "25.0%", Caption: "PC2 Variance"},
		{Value: "85.0%", Caption: "PC1+PC2 Cum. Var."},
	}
	assert.Equal(t, want, d.Cards)
	assert.Equal(t, 5, d.Stats.PointCount)
}

func TestBuildScatter(t *testing.T) {
	s := Build(sampleResult()).Scatter
	assert.Equal(t, "PC1 (60.00%)", s.XAxis.Title)
	assert.Equal(t, "PC2 (25.00%)", s.YAxis.Title)
	assert.Equal(t, "Timestep Index", s.ColorbarTitle)
	assert.Equal(t, "Viridis", s.ColorScale)
	assert.Equal(t, 12, s.MarkerSize)
	require.Len(t, s.Points, 5)

	first, last := s.Points[0], s.Points[4]
	assert.Equal(t, "t0\nPC1: 1.500\nPC2: -0.250", first.HoverText)
	assert.Equal(t, 0, first.ColorValue)
	assert.Equal(t, 4, last.ColorValue)
	assert.Len(t, first.Color, 7)
	assert.True(t, strings.HasPrefix(first.Color, "#"))
	assert.NotEqual(t, first.Color, last.Color)
}

func TestBuildComponentCharts(t *testing.T) {
	d := Build(sampleResult())

	assert.Equal(t, "#3b82f6", d.Contribution.Color)
	assert.Equal(t, "Principal Component", d.Contribution.XAxis.Title)
	assert.Equal(t, "Explained Variance Ratio", d.Contribution.YAxis.Title)
	assert.Equal(t, []Category{{"PC1", 0.6}, {"PC2", 0.25}, {"PC3", 0.15}}, d.Contribution.Bars)

	assert.Equal(t, "#16a34a", d.Cumulative.Color)
	assert.Equal(t, "Cumulative Variance Ratio", d.Cumulative.YAxis.Title)
	require.NotNil(t, d.Cumulative.YAxis.Range)
	assert.Equal(t, [2]float64{0, 1.1}, *d.Cumulative.YAxis.Range)
	assert.Equal(t, []Category{{"PC1", 0.6}, {"PC2", 0.85}, {"PC3", 1.0}}, d.Cumulative.Points)
}

func TestBuildSingleComponent(t *testing.T) {
	d := Build(pca.Result{
		Points:                  []pca.Point{{X: 1, Y: 0, Label: "only"}},
		ExplainedVarianceRatio:  []float64{1},
		CumulativeVarianceRatio: []float64{1},
	})
	assert.Equal(t, "PC2 (0.00%)", d.Scatter.YAxis.Title)
	assert.Equal(t, "0.0%", d.Cards[2].Value)
	assert.Equal(t, "100.0%", d.Cards[3].Value)
	assert.Len(t, d.Scatter.Points[0].Color, 7)
}

func TestBuildReturnsFreshValue(t *testing.T) {
	r := sampleResult()
	a := Build(r)
	a.Cards[0].Value = "changed"
	a.Scatter.Points[0].Label = "changed"

	b := Build(r)
	assert.Equal(t, "5", b.Cards[0].Value)
	assert.Equal(t, "t0", b.Scatter.Points[0].Label)
}

func TestParseChartName(t *testing.T) {
	for _, n := range ChartNames {
		got, ok := ParseChartName(string(n))
		assert.True(t, ok)
		assert.Equal(t, n, got)
	}
	_, ok := ParseChartName("pie")
	assert.False(t, ok)
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat("SVG")
	assert.True(t, ok)
	assert.Equal(t, FormatSVG, f)
	assert.Equal(t, "image/svg+xml", f.ContentType())

	_, ok = ParseFormat("gif")
	assert.False(t, ok)
}

func TestParseChartFile(t *testing.T) {
	name, format, ok := ParseChartFile("cumulative.SVG")
	require.True(t, ok)
	assert.Equal(t, ChartCumulative, name)
	assert.Equal(t, FormatSVG, format)
	assert.Equal(t, "cumulative.svg", name.FileName(format))

	for _, bad := range []string{"scatter", "pie.png", "scatter.gif", ""} {
		_, _, ok := ParseChartFile(bad)
		assert.False(t, ok, bad)
	}
}

func TestRenderChartAllFormats(t *testing.T) {
	d := Build(sampleResult())
	for _, name := range ChartNames {
		name := name
		t.Run(string(name), func(t *testing.T) {
			var png bytes.Buffer
			require.NoError(t, RenderChart(d, name, FormatPNG, &png))
			assert.True(t, bytes.HasPrefix(png.Bytes(), []byte("\x89PNG")), "expected PNG signature")

			var svg bytes.Buffer
			require.NoError(t, RenderChart(d, name, FormatSVG, &svg))
			assert.Contains(t, svg.String(), "<svg")
		})
	}
}

func TestRenderScatterDrawsColorbar(t *testing.T) {
	d := Build(sampleResult())
	var svg bytes.Buffer
	require.NoError(t, RenderChart(d, ChartScatter, FormatSVG, &svg))
	out := svg.String()

	assert.Equal(t, 1, strings.Count(out, ">Timestep Index</text>"), "colorbar title drawn once")
	assert.Contains(t, out, ">4</text>", "colorbar ends at n-1")
	assert.Contains(t, out, indexColor(10, colorbarSteps).String(), "gradient step between point colors")
}

func TestScatterHotspots(t *testing.T) {
	d := Build(sampleResult())
	spots, err := ScatterHotspots(d)
	require.NoError(t, err)
	require.Len(t, spots, 5)

	assert.Equal(t, "t0\nPC1: 1.500\nPC2: -0.250", spots[0].Text)
	assert.Greater(t, spots[0].X, spots[3].X, "larger PC1 lands further right")
	assert.Less(t, spots[1].Y, spots[3].Y, "larger PC2 lands higher")
	for _, sp := range spots {
		assert.True(t, sp.X > 0 && sp.X < ChartWidth && sp.Y > 0 && sp.Y < ChartHeight, "%+v inside the image", sp)
		assert.Positive(t, sp.R)
	}

	_, err = ScatterHotspots(Build(pca.Result{Points: []pca.Point{}, ExplainedVarianceRatio: []float64{1}, CumulativeVarianceRatio: []float64{1}}))
	assert.ErrorIs(t, err, ErrEmptyChart)
}

func TestRenderChartSinglePoint(t *testing.T) {
	d := Build(pca.Result{
		Points:                  []pca.Point{{X: 2, Y: 2, Label: "one"}},
		ExplainedVarianceRatio:  []float64{1},
		CumulativeVarianceRatio: []float64{1},
	})
	var buf bytes.Buffer
	require.NoError(t, RenderChart(d, ChartScatter, FormatPNG, &buf))
	buf.Reset()
	require.NoError(t, RenderChart(d, ChartCumulative, FormatPNG, &buf))
}

func TestRenderChartErrors(t *testing.T) {
	empty := Build(pca.Result{Points: []pca.Point{}, ExplainedVarianceRatio: []float64{1}, CumulativeVarianceRatio: []float64{1}})
	var buf bytes.Buffer
	assert.False(t, empty.HasData(ChartScatter))
	assert.True(t, empty.HasData(ChartContribution))
	err := RenderChart(empty, ChartScatter, FormatPNG, &buf)
	assert.True(t, errors.Is(err, ErrEmptyChart))

	err = RenderChart(empty, ChartName("pie"), FormatPNG, &buf)
	assert.True(t, errors.Is(err, ErrUnknownChart))
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(sampleResult(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Points", "Variance", "Summary"}, f.GetSheetList())

	points, err := f.GetRows("Points")
	require.NoError(t, err)
	require.Len(t, points, 6)
	assert.Equal(t, []string{"Index", "Label", "PC1", "PC2"}, points[0])
	assert.Equal(t, "t4", points[5][1])

	variance, err := f.GetRows("Variance")
	require.NoError(t, err)
	require.Len(t, variance, 4)
	assert.Equal(t, "PC3", variance[3][0])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"PC1+PC2 Cum. Var.", "85.0%"}, summary[4])
}
