package types

// PredictResult is the reply of an interactive segmentation request. Boxes are
// pixel xyxy, masks are polygons of pixel [x, y] points, one per prompt.
type PredictResult struct {
	Boxes [][4]float64   `json:"boxes"`
	Masks [][][2]float64 `json:"masks"`
}
