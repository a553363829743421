package sam

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"autolabel-backend/internal/core/types"
)

// Model builds image bound sessions. OnnxModel is the production backend.
type Model interface {
	NewSession(img image.Image) (Session, error)
	Release()
}

type ImageLoader interface {
	Load(ctx context.Context, identity string) (image.Image, error)
}

// Predictor answers interactive prompts against cached image sessions. It is
// not safe for concurrent use.
type Predictor struct {
	model Model
	cache *SessionCache
	opts  RefineOptions
}

func NewPredictor(model Model, images ImageLoader, cacheSize int, opts RefineOptions) *Predictor {
	load := func(ctx context.Context, key string) (*CacheEntry, error) {
		img, err := images.Load(ctx, key)
		if err != nil {
			return nil, err
		}

		session, err := model.NewSession(img)
		if err != nil {
			return nil, fmt.Errorf("error creating session for %s: %w", key, err)
		}
		slog.Info("created sam session", "image", key)
		return &CacheEntry{Image: img, Session: session}, nil
	}

	return &Predictor{
		model: model,
		cache: NewSessionCache(cacheSize, load),
		opts:  opts,
	}
}

// PromptsFromPayload pairs wire point groups with their labels.
func PromptsFromPayload(points [][][]float64, labels [][]int) []Prompt {
	prompts := make([]Prompt, len(points))
	for i, group := range points {
		prompt := Prompt{Points: make([][2]float64, len(group)), Labels: labels[i]}
		for j, p := range group {
			prompt.Points[j] = [2]float64{p[0], p[1]}
		}
		prompts[i] = prompt
	}
	return prompts
}

// Predict segments one object per prompt on the image behind identity. The
// entry's stored masks are only replaced when every prompt succeeds.
func (p *Predictor) Predict(ctx context.Context, identity string, prompts []Prompt) (types.PredictResult, error) {
	entry, err := p.cache.GetOrCreate(ctx, identity)
	if err != nil {
		return types.PredictResult{}, err
	}

	if len(prompts) == 0 {
		entry.LastMasks = nil
		return types.PredictResult{Boxes: [][4]float64{}, Masks: [][][2]float64{}}, nil
	}

	raw, err := entry.Session.Predict(prompts)
	if err != nil {
		return types.PredictResult{}, err
	}

	refined, err := Refine(raw, prompts, p.opts)
	if err != nil {
		return types.PredictResult{}, err
	}

	entry.LastMasks = refined
	return EncodeResult(refined), nil
}

func (p *Predictor) Cache() *SessionCache {
	return p.cache
}

func (p *Predictor) Close() {
	p.cache.Close()
	p.model.Release()
}
