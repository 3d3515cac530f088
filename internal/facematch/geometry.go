package facematch

import "math"

// Location is a face box in image pixels, ordered the way capture clients
// draw it: top, right, bottom, left.
type Location struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// LocationFromBBox converts a detector box [x1, y1, x2, y2] to a Location.
// Returns nil for malformed boxes.
func LocationFromBBox(bbox []float64) *Location {
	if len(bbox) != 4 {
		return nil
	}
	x1, y1, x2, y2 := bbox[0], bbox[1], bbox[2], bbox[3]
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return &Location{
		Top:    int(math.Round(y1)),
		Right:  int(math.Round(x2)),
		Bottom: int(math.Round(y2)),
		Left:   int(math.Round(x1)),
	}
}

// Width returns the horizontal extent of the box.
func (l Location) Width() int {
	return l.Right - l.Left
}

// Height returns the vertical extent of the box.
func (l Location) Height() int {
	return l.Bottom - l.Top
}
