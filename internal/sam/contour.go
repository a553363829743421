package sam

import "autolabel-backend/internal/core/types"

func firstPixel(m Mask) (int, int, bool) {
	for i, p := range m.Pixels {
		if p {
			return i % m.Width, i / m.Width, true
		}
	}
	return 0, 0, false
}

func neighbourIndex(dx, dy int) int {
	for i, d := range neighbours {
		if d[0] == dx && d[1] == dy {
			return i
		}
	}
	return -1
}

// Contour traces the outer boundary of the region containing the first
// foreground pixel in raster order, clockwise, using Moore neighbour tracing.
func Contour(m Mask) [][2]int {
	sx, sy, ok := firstPixel(m)
	if !ok {
		return nil
	}

	start := [2]int{sx, sy}
	contour := [][2]int{start}
	p := start
	back := 0 // west of the first pixel is background

	limit := 4*len(m.Pixels) + 8
	for step := 0; step < limit; step++ {
		var next [2]int
		found := false
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			nx, ny := p[0]+neighbours[d][0], p[1]+neighbours[d][1]
			if !m.At(nx, ny) {
				continue
			}
			prev := neighbours[(d+7)%8]
			back = neighbourIndex(p[0]+prev[0]-nx, p[1]+prev[1]-ny)
			next = [2]int{nx, ny}
			found = true
			break
		}
		if !found {
			break // single pixel
		}
		if p == start && len(contour) > 1 && next == contour[1] {
			break
		}
		p = next
		contour = append(contour, p)
	}

	if len(contour) > 1 && contour[len(contour)-1] == start {
		contour = contour[:len(contour)-1]
	}
	return simplify(contour)
}

// simplify drops points lying on a straight run between their neighbours.
func simplify(contour [][2]int) [][2]int {
	n := len(contour)
	if n < 3 {
		return contour
	}

	out := make([][2]int, 0, n)
	for i := 0; i < n; i++ {
		prev, cur, next := contour[(i+n-1)%n], contour[i], contour[(i+1)%n]
		if cur[0]-prev[0] == next[0]-cur[0] && cur[1]-prev[1] == next[1]-cur[1] {
			continue
		}
		out = append(out, cur)
	}
	if len(out) == 0 {
		return contour[:1]
	}
	return out
}

// EncodeResult turns refined masks into boxes and polygons in pixel space.
func EncodeResult(masks []Mask) types.PredictResult {
	result := types.PredictResult{
		Boxes: make([][4]float64, 0, len(masks)),
		Masks: make([][][2]float64, 0, len(masks)),
	}
	for _, m := range masks {
		box, ok := m.Box()
		if !ok {
			continue
		}
		result.Boxes = append(result.Boxes, [4]float64{float64(box[0]), float64(box[1]), float64(box[2]), float64(box[3])})

		contour := Contour(m)
		polygon := make([][2]float64, 0, len(contour))
		for _, pt := range contour {
			polygon = append(polygon, [2]float64{float64(pt[0]), float64(pt[1])})
		}
		result.Masks = append(result.Masks, polygon)
	}
	return result
}
