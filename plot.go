package cvxkerb

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SavePlanPlot renders a planned trajectory's altitude and lateral offset
// (both relative to the target) against the step index, and saves it to the
// given path. The image format follows the file extension.
func SavePlanPlot(plan *TrajectoryPlan, target LandingTarget, path string) error {
	p := plot.New()
	p.Title.Text = "Planned descent"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "m"

	alt := make(plotter.XYs, len(plan.Positions))
	lat := make(plotter.XYs, len(plan.Positions))
	for i, pos := range plan.Positions {
		rel := sub(pos, target.Position)
		alt[i].X = float64(i)
		alt[i].Y = rel[2]
		lat[i].X = float64(i)
		lat[i].Y = lateralNorm(rel)
	}
	if err := plotutil.AddLinePoints(p, "altitude", alt, "lateral offset", lat); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
