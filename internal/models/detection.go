package models

import "image"

// Point is a position in region-of-interest pixel coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Detection represents one object found by a detector in a single frame.
// Box and Area are optional; backends that only report centroids leave them zero.
type Detection struct {
	Centroid Point           `json:"centroid"`
	Box      image.Rectangle `json:"box"`
	Area     float64         `json:"area"`
	Score    float32         `json:"score"`
}

// Centroids extracts the centroid of every detection, preserving order
func Centroids(detections []Detection) []Point {
	points := make([]Point, 0, len(detections))
	for _, d := range detections {
		points = append(points, d.Centroid)
	}
	return points
}

// BoxCenter returns the centre of a bounding box
func BoxCenter(r image.Rectangle) Point {
	return Point{
		X: float64(r.Min.X+r.Max.X) / 2.0,
		Y: float64(r.Min.Y+r.Max.Y) / 2.0,
	}
}
