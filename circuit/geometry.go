package circuit

import "github.com/AnatoleLucet/render/circuit/autorouter"

type Point = autorouter.Point

type Size struct {
	W float64 `json:"width"`
	H float64 `json:"height"`
}

const (
	layoutRowWidth = 20.0
	layoutGap      = 1.0
	groupPadding   = 0.5
)

// pack places boxes left to right in rows no wider than maxWidth and returns
// the center of every box, relative to the top-left corner of the packing,
// along with the size of the whole packing.
func pack(sizes []Size, maxWidth float64) ([]Point, Size) {
	centers := make([]Point, len(sizes))

	var x, y, rowH, width float64
	for i, s := range sizes {
		if x > 0 && x+s.W > maxWidth {
			y += rowH + layoutGap
			x, rowH = 0, 0
		}

		centers[i] = Point{X: x + s.W/2, Y: y + s.H/2}

		x += s.W
		width = max(width, x)
		rowH = max(rowH, s.H)
		x += layoutGap
	}

	return centers, Size{W: width, H: y + rowH}
}

func offset(p, by Point) Point {
	return Point{X: p.X + by.X, Y: p.Y + by.Y}
}
