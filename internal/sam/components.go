package sam

// neighbours in clockwise order starting west, y pointing down.
var neighbours = [8][2]int{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}}

// Components holds an 8-connected labelling of a mask. Label 0 is background,
// foreground components are numbered from 1.
type Components struct {
	Labels []int
	Areas  []int // Areas[i] is the area of label i, Areas[0] is the background
	width  int
}

func (c Components) Count() int {
	return len(c.Areas) - 1
}

func (c Components) LabelAt(x, y int) int {
	return c.Labels[y*c.width+x]
}

// LabelComponents labels the foreground of m by breadth first flood fill.
func LabelComponents(m Mask) Components {
	labels := make([]int, len(m.Pixels))
	areas := []int{0}
	queue := make([]int, 0, 64)

	for start, fg := range m.Pixels {
		if !fg {
			areas[0]++
			continue
		}
		if labels[start] != 0 {
			continue
		}

		label := len(areas)
		areas = append(areas, 0)
		labels[start] = label
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			areas[label]++

			x, y := idx%m.Width, idx/m.Width
			for _, d := range neighbours {
				nx, ny := x+d[0], y+d[1]
				if !m.At(nx, ny) {
					continue
				}
				n := ny*m.Width + nx
				if labels[n] == 0 {
					labels[n] = label
					queue = append(queue, n)
				}
			}
		}
	}

	return Components{Labels: labels, Areas: areas, width: m.Width}
}

// Select returns a mask holding only the pixels with the given label.
func (c Components) Select(width, height, label int) Mask {
	out := NewMask(width, height)
	for i, l := range c.Labels {
		out.Pixels[i] = l == label
	}
	return out
}
