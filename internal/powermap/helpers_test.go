package powermap

import (
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/doet/powermap/internal/feature"
)

func pduFeature(id string, x, y float64, size string, source bool) feature.Feature {
	f := feature.New(id, orb.Point{x, y})
	f.Properties["name"] = id
	f.Properties["size"] = size
	if source {
		f.Properties["power_source"] = true
	}
	return f
}

func cableFeature(id string, size string, pts ...orb.Point) feature.Feature {
	f := feature.New(id, orb.LineString(pts))
	f.Properties["name"] = id
	f.Properties["size"] = size
	return f
}

func squareFeature(id string, x0, y0, side float64) feature.Feature {
	f := feature.New(id, orb.Polygon{{{x0, y0}, {x0 + side, y0}, {x0 + side, y0 + side}, {x0, y0 + side}, {x0, y0}}})
	f.Properties["name"] = id
	return f
}

func consumerFeature(id string, x0, y0, side float64, people, power int) feature.Feature {
	f := squareFeature(id, x0, y0, side)
	f.Properties["nrOfPeople"] = float64(people)
	f.Properties["powerNeed"] = float64(power)
	return f
}

func errorsFor(g *Grid, id string) []LogEntry {
	var out []LogEntry
	for _, e := range g.Log.ForItem(id) {
		if e.Level >= slog.LevelError {
			out = append(out, e)
		}
	}
	return out
}
