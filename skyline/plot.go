// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package skyline

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/js-arias/blind"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// A Scheme is a color scheme for the credible band.
type Scheme int

// Valid color schemes.
const (
	Iridescent Scheme = iota
	Incandescent
	Rainbow
)

// ParseScheme returns a color scheme from its name.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(name) {
	case "iridescent", "":
		return Iridescent, nil
	case "incandescent":
		return Incandescent, nil
	case "rainbow":
		return Rainbow, nil
	}
	return Iridescent, fmt.Errorf("unknown color scheme %q", name)
}

// Color returns the color of the scheme
// at v,
// a value between 0 and 1.
func (s Scheme) Color(v float64) color.Color {
	v = math.Max(0, math.Min(1, v))
	switch s {
	case Incandescent:
		return blind.Sequential(blind.Incandescent, v)
	case Rainbow:
		return blind.Sequential(blind.RainbowPurpleToRed, v)
	}
	return blind.Sequential(blind.Iridescent, v)
}

// bandPlot draws the median
// and the credible band of a skyline.
type bandPlot struct {
	pts   []Point
	fill  color.Color
	style draw.LineStyle
}

// DataRange implements the plot.DataRanger interface.
func (bp *bandPlot) DataRange() (xMin, xMax, yMin, yMax float64) {
	xMin, xMax = bp.pts[0].Time, bp.pts[len(bp.pts)-1].Time
	yMin, yMax = math.Inf(1), 0
	for _, p := range bp.pts {
		yMin = math.Min(yMin, p.Lower)
		yMax = math.Max(yMax, p.Upper)
	}
	return xMin, xMax, yMin, yMax
}

// Plot implements the plot.Plotter interface.
func (bp *bandPlot) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)

	band := make([]vg.Point, 0, 2*len(bp.pts)+1)
	for _, p := range bp.pts {
		band = append(band, vg.Point{X: trX(p.Time), Y: trY(p.Upper)})
	}
	for i := len(bp.pts) - 1; i >= 0; i-- {
		p := bp.pts[i]
		band = append(band, vg.Point{X: trX(p.Time), Y: trY(p.Lower)})
	}
	band = append(band, band[0])
	c.FillPolygon(bp.fill, c.ClipPolygonXY(band))

	c.SetLineStyle(bp.style)
	var path vg.Path
	for i, p := range bp.pts {
		pt := vg.Point{X: trX(p.Time), Y: trY(p.Median)}
		if i == 0 {
			path.Move(pt)
			continue
		}
		path.Line(pt)
	}
	c.Stroke(path)
}

// Plot saves a plot of the skyline
// into a file.
// The format of the image
// is taken from the file extension
// (for example .png or .svg).
// The population size is plotted
// in logarithmic scale.
func (sk *Skyline) Plot(name string, scheme Scheme, unit string) error {
	if len(sk.Points) < 2 {
		return fmt.Errorf("skyline: plot with %d points", len(sk.Points))
	}
	for _, p := range sk.Points {
		if !(p.Lower > 0) || math.IsInf(p.Upper, 0) {
			return fmt.Errorf("skyline: time %.6f: invalid population size for a logarithmic scale", p.Time)
		}
	}

	p := plot.New()
	p.X.Label.Text = "time"
	if unit != "" {
		p.X.Label.Text = fmt.Sprintf("time (%s)", unit)
	}
	p.Y.Label.Text = "population size"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	style := plotter.DefaultLineStyle
	style.Color = scheme.Color(1)
	p.Add(&bandPlot{
		pts:   sk.Points,
		fill:  scheme.Color(0.3),
		style: style,
	})

	if err := p.Save(6*vg.Inch, 4*vg.Inch, name); err != nil {
		return fmt.Errorf("skyline: while saving plot %q: %v", name, err)
	}
	return nil
}
