package sam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContourSquare(t *testing.T) {
	m := maskFromRows(
		".....",
		".###.",
		".###.",
		".###.",
		".....",
	)

	assert.Equal(t, [][2]int{{1, 1}, {3, 1}, {3, 3}, {1, 3}}, Contour(m))
}

func TestContourSinglePixelAndEmpty(t *testing.T) {
	m := maskFromRows(
		"...",
		".#.",
		"...",
	)
	assert.Equal(t, [][2]int{{1, 1}}, Contour(m))
	assert.Nil(t, Contour(NewMask(3, 3)))
}

func TestEncodeResult(t *testing.T) {
	m := maskFromRows(
		"......",
		"..###.",
		"..###.",
		"......",
	)

	result := EncodeResult([]Mask{m, NewMask(6, 4)})
	assert.Equal(t, [][4]float64{{2, 1, 4, 2}}, result.Boxes)
	assert.Equal(t, [][][2]float64{{{2, 1}, {4, 1}, {4, 2}, {2, 2}}}, result.Masks)

	empty := EncodeResult(nil)
	assert.NotNil(t, empty.Boxes)
	assert.NotNil(t, empty.Masks)
}
