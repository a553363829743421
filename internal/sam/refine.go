package sam

import (
	"fmt"
	"math"
	"sort"

	"autolabel-backend/internal/core/types"
)

const (
	DefaultMinAreaRatio = 0.05
	DefaultNmsThreshold = 0.7
)

type RefineOptions struct {
	MinAreaRatio float64
	NmsThreshold float64
}

func DefaultRefineOptions() RefineOptions {
	return RefineOptions{MinAreaRatio: DefaultMinAreaRatio, NmsThreshold: DefaultNmsThreshold}
}

// Prompt is the set of clicks for one object.
type Prompt struct {
	Points [][2]float64
	Labels []int
}

// Click is the pixel the refinement anchors on: the first foreground point,
// or the first point when every point is background.
func (p Prompt) Click() (int, int, bool) {
	if len(p.Points) == 0 {
		return 0, 0, false
	}
	chosen := p.Points[0]
	for i, label := range p.Labels {
		if label == 1 && i < len(p.Points) {
			chosen = p.Points[i]
			break
		}
	}
	return int(math.Floor(chosen[0])), int(math.Floor(chosen[1])), true
}

// IsolateAtPoint keeps only the connected region of m under (x, y). m is not
// modified.
func IsolateAtPoint(m Mask, x, y int) (Mask, error) {
	if !m.In(x, y) {
		return Mask{}, fmt.Errorf("%w: (%d, %d) is outside the %dx%d mask", types.ErrPointNotInMask, x, y, m.Width, m.Height)
	}

	components := LabelComponents(m)
	label := components.LabelAt(x, y)
	if label == 0 {
		return Mask{}, fmt.Errorf("%w: (%d, %d) is background", types.ErrPointNotInMask, x, y)
	}

	return components.Select(m.Width, m.Height, label), nil
}

// RemoveSmallRegions drops connected regions with fewer than minArea pixels.
// changed reports whether anything was removed.
func RemoveSmallRegions(m Mask, minArea int) (Mask, bool) {
	components := LabelComponents(m)

	small := make([]bool, len(components.Areas))
	changed := false
	for label := 1; label < len(components.Areas); label++ {
		if components.Areas[label] < minArea {
			small[label] = true
			changed = true
		}
	}
	if !changed {
		return m.Clone(), false
	}

	out := NewMask(m.Width, m.Height)
	for i, label := range components.Labels {
		out.Pixels[i] = label != 0 && !small[label]
	}
	return out, true
}

func boxArea(b [4]int) float64 {
	return float64(b[2]-b[0]+1) * float64(b[3]-b[1]+1)
}

func boxIoU(a, b [4]int) float64 {
	ix1, iy1 := max(a[0], b[0]), max(a[1], b[1])
	ix2, iy2 := min(a[2], b[2]), min(a[3], b[3])
	if ix2 < ix1 || iy2 < iy1 {
		return 0
	}
	inter := float64(ix2-ix1+1) * float64(iy2-iy1+1)
	return inter / (boxArea(a) + boxArea(b) - inter)
}

// SuppressOverlaps runs greedy box non-max suppression and returns the
// indices of the masks to keep in ascending order. Masks the cleaning left
// unchanged win over changed ones, ties go to the earlier mask. Empty masks
// are dropped.
func SuppressOverlaps(masks []Mask, unchanged []bool, threshold float64) []int {
	type candidate struct {
		index int
		box   [4]int
	}

	candidates := make([]candidate, 0, len(masks))
	for i, m := range masks {
		if box, ok := m.Box(); ok {
			candidates = append(candidates, candidate{index: i, box: box})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return unchanged[candidates[i].index] && !unchanged[candidates[j].index]
	})

	var kept []candidate
	for _, c := range candidates {
		suppressed := false
		for _, k := range kept {
			if boxIoU(c.box, k.box) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}

	indices := make([]int, 0, len(kept))
	for _, k := range kept {
		indices = append(indices, k.index)
	}
	sort.Ints(indices)
	return indices
}

// Refine narrows each raw mask to the region under its prompt's click and
// strips residual fragments. masks[i] belongs to prompts[i]. Any prompt whose
// click misses its mask fails the whole call.
func Refine(masks []Mask, prompts []Prompt, opts RefineOptions) ([]Mask, error) {
	if len(masks) != len(prompts) {
		return nil, fmt.Errorf("%w: got %d masks for %d prompts", types.ErrInference, len(masks), len(prompts))
	}

	cleaned := make([]Mask, len(masks))
	unchanged := make([]bool, len(masks))
	for i, m := range masks {
		x, y, ok := prompts[i].Click()
		if !ok {
			return nil, fmt.Errorf("%w: prompt %d has no points", types.ErrPointNotInMask, i)
		}

		region, err := IsolateAtPoint(m, x, y)
		if err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i, err)
		}

		minArea := int(float64(region.Area()) * opts.MinAreaRatio)
		var changed bool
		cleaned[i], changed = RemoveSmallRegions(region, minArea)
		unchanged[i] = !changed
	}

	keep := SuppressOverlaps(cleaned, unchanged, opts.NmsThreshold)
	out := make([]Mask, 0, len(keep))
	for _, i := range keep {
		out = append(out, cleaned[i])
	}
	return out, nil
}
