// Package roi parses and applies region-of-interest masks that restrict
// which pixels of a captured frame are propagated downstream.
package roi

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Mask is a binary region-of-interest mask the same size as the frame it
// was built for; pixels outside any configured rectangle or polygon are
// zeroed before the frame is written to the ring.
type Mask struct {
	width, height int
	bits          []bool // row-major, true = inside ROI
}

// ParseError records a malformed rectangle or polygon region, which per
// spec is silently skipped (counted) rather than failing the whole mask.
type ParseError struct {
	Region string
	Cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("roi: skipping region %q: %v", e.Region, e.Cause)
}

// Build parses rectangle and polygon specs and rasterizes them into a mask
// sized width×height. Rectangles use "x1,y1,x2,y2;..." and polygons use
// "x,y;x,y;...|..." (multiple polygons separated by "|"). Malformed
// regions are skipped and reported via errs, not returned as a hard error.
func Build(width, height int, rectSpec, polygonSpec string) (*Mask, []error) {
	m := &Mask{width: width, height: height, bits: make([]bool, width*height)}
	var errs []error

	for _, region := range splitNonEmpty(rectSpec, ";") {
		rect, err := parseRect(region)
		if err != nil {
			errs = append(errs, &ParseError{Region: region, Cause: err})
			continue
		}
		m.fillRect(rect)
	}

	for _, region := range splitNonEmpty(polygonSpec, "|") {
		poly, err := parsePolygon(region)
		if err != nil {
			errs = append(errs, &ParseError{Region: region, Cause: err})
			continue
		}
		m.fillPolygon(poly)
	}

	// An empty mask (no regions configured at all) passes everything
	// through unmasked rather than blacking out the whole frame.
	if rectSpec == "" && polygonSpec == "" {
		for i := range m.bits {
			m.bits[i] = true
		}
	}

	return m, errs
}

func splitNonEmpty(spec, sep string) []string {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	parts := strings.Split(spec, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseRect(spec string) (image.Rectangle, error) {
	fields := strings.Split(spec, ",")
	if len(fields) != 4 {
		return image.Rectangle{}, fmt.Errorf("expected 4 comma-separated coordinates, got %d", len(fields))
	}
	coords := make([]int, 4)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("coordinate %d: %w", i, err)
		}
		coords[i] = v
	}
	rect := image.Rect(coords[0], coords[1], coords[2], coords[3])
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return image.Rectangle{}, fmt.Errorf("rectangle must have positive area")
	}
	return rect, nil
}

func parsePolygon(spec string) ([]image.Point, error) {
	vertices := strings.Split(spec, ";")
	if len(vertices) < 3 {
		return nil, fmt.Errorf("polygon requires at least 3 vertices, got %d", len(vertices))
	}
	points := make([]image.Point, 0, len(vertices))
	for _, v := range vertices {
		fields := strings.Split(v, ",")
		if len(fields) != 2 {
			return nil, fmt.Errorf("vertex %q must be x,y", v)
		}
		x, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("vertex x: %w", err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("vertex y: %w", err)
		}
		points = append(points, image.Point{X: x, Y: y})
	}
	return points, nil
}

func (m *Mask) fillRect(rect image.Rectangle) {
	bounds := image.Rect(0, 0, m.width, m.height).Intersect(rect)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			m.bits[y*m.width+x] = true
		}
	}
}

// fillPolygon rasterizes using an even-odd scanline fill.
func (m *Mask) fillPolygon(points []image.Point) {
	for y := 0; y < m.height; y++ {
		var crossings []float64
		n := len(points)
		for i := 0; i < n; i++ {
			a, b := points[i], points[(i+1)%n]
			if (a.Y <= y && b.Y > y) || (b.Y <= y && a.Y > y) {
				t := float64(y-a.Y) / float64(b.Y-a.Y)
				crossings = append(crossings, float64(a.X)+t*float64(b.X-a.X))
			}
		}
		for i := 0; i+1 < len(crossings); i += 2 {
			x0, x1 := crossings[i], crossings[i+1]
			if x0 > x1 {
				x0, x1 = x1, x0
			}
			for x := int(x0); x < m.width && float64(x) < x1; x++ {
				if x >= 0 {
					m.bits[y*m.width+x] = true
				}
			}
		}
	}
}

// Apply zeroes every pixel of a BGR8 buffer (width*height*3 bytes) that
// falls outside the mask, in place.
func (m *Mask) Apply(bgr []byte) {
	if m == nil || len(bgr) != m.width*m.height*3 {
		return
	}
	for i, inside := range m.bits {
		if !inside {
			off := i * 3
			bgr[off], bgr[off+1], bgr[off+2] = 0, 0, 0
		}
	}
}
