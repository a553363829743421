package sam

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	"autolabel-backend/internal/core/types"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	EncoderFile = "encoder.onnx"
	DecoderFile = "decoder.onnx"

	embeddingChannels = 256
	embeddingSize     = 64
	lowResMaskSize    = 256
)

// OnnxModel runs an exported SAM image encoder and prompt decoder. The
// encoder maps "image" [1,3,1024,1024] to "image_embeddings" [1,256,64,64].
// The decoder follows the segment-anything onnx export signature.
type OnnxModel struct {
	encoder *ort.DynamicAdvancedSession
	decoder *ort.DynamicAdvancedSession
}

func LoadOnnxModel(modelDir string) (*OnnxModel, error) {
	encoder, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, EncoderFile),
		[]string{"image"},
		[]string{"image_embeddings"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder session: %w", err)
	}

	decoder, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, DecoderFile),
		[]string{"image_embeddings", "point_coords", "point_labels", "mask_input", "has_mask_input", "orig_im_size"},
		[]string{"masks", "iou_predictions"},
		nil,
	)
	if err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("failed to create decoder session: %w", err)
	}

	slog.Info("loaded sam onnx model", "dir", modelDir)
	return &OnnxModel{encoder: encoder, decoder: decoder}, nil
}

func (m *OnnxModel) NewSession(img image.Image) (Session, error) {
	bounds := img.Bounds()

	input, err := ort.NewTensor(ort.NewShape(1, 3, encoderInputSize, encoderInputSize), preprocess(img))
	if err != nil {
		return nil, fmt.Errorf("%w: error creating encoder input: %v", types.ErrInference, err)
	}
	defer input.Destroy()

	embeddings, err := ort.NewEmptyTensor[float32](ort.NewShape(1, embeddingChannels, embeddingSize, embeddingSize))
	if err != nil {
		return nil, fmt.Errorf("%w: error creating encoder output: %v", types.ErrInference, err)
	}

	if err := m.encoder.Run([]ort.Value{input}, []ort.Value{embeddings}); err != nil {
		embeddings.Destroy()
		return nil, fmt.Errorf("%w: encoder run error: %v", types.ErrInference, err)
	}

	return &onnxSession{
		model:      m,
		embeddings: embeddings,
		width:      bounds.Dx(),
		height:     bounds.Dy(),
		scale:      resizeScale(bounds.Dx(), bounds.Dy()),
	}, nil
}

func (m *OnnxModel) Release() {
	if err := m.encoder.Destroy(); err != nil {
		slog.Error("error destroying encoder session", "error", err)
	}
	if err := m.decoder.Destroy(); err != nil {
		slog.Error("error destroying decoder session", "error", err)
	}
}

var _ Session = (*onnxSession)(nil)

type onnxSession struct {
	model      *OnnxModel
	embeddings *ort.Tensor[float32]
	width      int
	height     int
	scale      float32
}

// Release frees the image embeddings. The model sessions stay alive.
func (s *onnxSession) Release() {
	if s.embeddings == nil {
		return
	}
	if err := s.embeddings.Destroy(); err != nil {
		slog.Error("error destroying image embeddings", "error", err)
	}
	s.embeddings = nil
}

func (s *onnxSession) Predict(prompts []Prompt) ([]Mask, error) {
	if s.embeddings == nil {
		return nil, fmt.Errorf("%w: session was released", types.ErrInference)
	}
	masks := make([]Mask, 0, len(prompts))
	for i, prompt := range prompts {
		mask, err := s.predictOne(prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: prompt %d: %v", types.ErrInference, i, err)
		}
		masks = append(masks, mask)
	}
	return masks, nil
}

func (s *onnxSession) predictOne(prompt Prompt) (Mask, error) {
	// The export expects a padding point labelled -1 when no box is given.
	n := len(prompt.Points) + 1
	coords := make([]float32, 0, 2*n)
	labels := make([]float32, 0, n)
	for i, p := range prompt.Points {
		coords = append(coords, float32(p[0])*s.scale, float32(p[1])*s.scale)
		labels = append(labels, float32(prompt.Labels[i]))
	}
	coords = append(coords, 0, 0)
	labels = append(labels, -1)

	pointCoords, err := ort.NewTensor(ort.NewShape(1, int64(n), 2), coords)
	if err != nil {
		return Mask{}, err
	}
	defer pointCoords.Destroy()

	pointLabels, err := ort.NewTensor(ort.NewShape(1, int64(n)), labels)
	if err != nil {
		return Mask{}, err
	}
	defer pointLabels.Destroy()

	maskInput, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, lowResMaskSize, lowResMaskSize))
	if err != nil {
		return Mask{}, err
	}
	defer maskInput.Destroy()

	hasMaskInput, err := ort.NewTensor(ort.NewShape(1), []float32{0})
	if err != nil {
		return Mask{}, err
	}
	defer hasMaskInput.Destroy()

	origSize, err := ort.NewTensor(ort.NewShape(2), []float32{float32(s.height), float32(s.width)})
	if err != nil {
		return Mask{}, err
	}
	defer origSize.Destroy()

	// Output shapes depend on the export, let onnxruntime allocate them.
	outputs := []ort.Value{nil, nil}
	inputs := []ort.Value{s.embeddings, pointCoords, pointLabels, maskInput, hasMaskInput, origSize}
	if err := s.model.decoder.Run(inputs, outputs); err != nil {
		return Mask{}, fmt.Errorf("decoder run error: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	maskTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Mask{}, fmt.Errorf("unexpected masks output type %T", outputs[0])
	}
	iouTensor, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return Mask{}, fmt.Errorf("unexpected iou output type %T", outputs[1])
	}

	return selectBestMask(maskTensor.GetData(), iouTensor.GetData(), s.width, s.height)
}

// selectBestMask thresholds the candidate with the highest predicted iou.
// logits holds the candidates back to back at width x height.
func selectBestMask(logits, scores []float32, width, height int) (Mask, error) {
	plane := width * height
	if len(scores) == 0 || len(logits) < len(scores)*plane {
		return Mask{}, fmt.Errorf("decoder returned %d mask values for %d candidates of %dx%d", len(logits), len(scores), width, height)
	}

	best := 0
	for i, score := range scores {
		if score > scores[best] {
			best = i
		}
	}

	mask := NewMask(width, height)
	candidate := logits[best*plane : (best+1)*plane]
	for i, v := range candidate {
		mask.Pixels[i] = v > 0
	}
	return mask, nil
}
