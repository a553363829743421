package sam

// Mask is a binary raster in row-major order.
type Mask struct {
	Width  int
	Height int
	Pixels []bool
}

func NewMask(width, height int) Mask {
	return Mask{Width: width, Height: height, Pixels: make([]bool, width*height)}
}

func (m Mask) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

func (m Mask) At(x, y int) bool {
	return m.In(x, y) && m.Pixels[y*m.Width+x]
}

func (m Mask) Set(x, y int, v bool) {
	m.Pixels[y*m.Width+x] = v
}

func (m Mask) Area() int {
	area := 0
	for _, p := range m.Pixels {
		if p {
			area++
		}
	}
	return area
}

func (m Mask) Clone() Mask {
	pixels := make([]bool, len(m.Pixels))
	copy(pixels, m.Pixels)
	return Mask{Width: m.Width, Height: m.Height, Pixels: pixels}
}

func (m Mask) Equal(other Mask) bool {
	if m.Width != other.Width || m.Height != other.Height {
		return false
	}
	for i := range m.Pixels {
		if m.Pixels[i] != other.Pixels[i] {
			return false
		}
	}
	return true
}

// Box returns the inclusive pixel bounds x1, y1, x2, y2. ok is false for an
// empty mask.
func (m Mask) Box() (box [4]int, ok bool) {
	box = [4]int{m.Width, m.Height, -1, -1}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Pixels[y*m.Width+x] {
				continue
			}
			box[0] = min(box[0], x)
			box[1] = min(box[1], y)
			box[2] = max(box[2], x)
			box[3] = max(box[3], y)
		}
	}
	return box, box[2] >= 0
}
