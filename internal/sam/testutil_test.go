package sam

import (
	"context"
	"fmt"
	"image"

	"autolabel-backend/internal/core/types"
)

// maskFromRows builds a mask from rows of '#' (foreground) and '.'.
func maskFromRows(rows ...string) Mask {
	m := NewMask(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			m.Set(x, y, c == '#')
		}
	}
	return m
}

type fakeSession struct {
	masks    []Mask
	err      error
	released bool
}

func (s *fakeSession) Predict(prompts []Prompt) ([]Mask, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Mask, len(prompts))
	for i := range prompts {
		out[i] = s.masks[i%len(s.masks)].Clone()
	}
	return out, nil
}

func (s *fakeSession) Release() {
	s.released = true
}

type fakeModel struct {
	masks    []Mask
	sessions []*fakeSession
	released bool
}

func (m *fakeModel) NewSession(img image.Image) (Session, error) {
	s := &fakeSession{masks: m.masks}
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *fakeModel) Release() {
	m.released = true
}

type fakeImages struct {
	loads []string
	bad   map[string]bool
}

func (f *fakeImages) Load(ctx context.Context, identity string) (image.Image, error) {
	if f.bad[identity] {
		return nil, fmt.Errorf("%w: cannot read %s", types.ErrImageLoad, identity)
	}
	f.loads = append(f.loads, identity)
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}
