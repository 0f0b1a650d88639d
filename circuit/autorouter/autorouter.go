// Package autorouter computes PCB trace paths between two points.
package autorouter

import (
	"context"
	"math"
	"time"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type RouteRequest struct {
	Trace string  `json:"trace"`
	From  Point   `json:"from"`
	To    Point   `json:"to"`
	Width float64 `json:"width,omitempty"`
}

type RouteResult struct {
	Points []Point `json:"points"`
	Length float64 `json:"length"`
}

// Router is called from background effects and must be safe for concurrent
// use.
type Router interface {
	Route(ctx context.Context, req RouteRequest) (RouteResult, error)
}

// Local routes every trace as an L: horizontal first, then vertical.
type Local struct {
	// artificial latency, to exercise the asynchronous path
	Delay time.Duration
}

func (l Local) Route(ctx context.Context, req RouteRequest) (RouteResult, error) {
	if l.Delay > 0 {
		timer := time.NewTimer(l.Delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return RouteResult{}, ctx.Err()
		}
	}

	return ManhattanPath(req.From, req.To), nil
}

// ManhattanPath is the L-shaped path from a to b. Collinear points give a
// single segment.
func ManhattanPath(a, b Point) RouteResult {
	points := []Point{a}
	if a.X != b.X && a.Y != b.Y {
		points = append(points, Point{X: b.X, Y: a.Y})
	}
	if a != b {
		points = append(points, b)
	}

	return RouteResult{
		Points: points,
		Length: math.Abs(b.X-a.X) + math.Abs(b.Y-a.Y),
	}
}
