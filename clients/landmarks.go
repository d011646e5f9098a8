package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/maastricht-university/emocorpus/record"
)

type LandmarkPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
type LandmarksResp struct {
	Faces [][]LandmarkPoint `json:"faces"`
}

// Points returns the points of face i, or nil if there is no such face.
func (r *LandmarksResp) Points(i int) []record.Point {
	if i < 0 || i >= len(r.Faces) {
		return nil
	}
	out := make([]record.Point, len(r.Faces[i]))
	for j, p := range r.Faces[i] {
		out[j] = record.Point{X: p.X, Y: p.Y, Z: p.Z}
	}
	return out
}

// Landmarks posts one JPEG frame to the face-mesh service. timestampMs is
// forwarded for detectors running in video mode, which require it to be
// non-decreasing per clip.
func (h *HTTP) Landmarks(ctx context.Context, url string, jpeg []byte, timestampMs int) (*LandmarksResp, error) {
	fields := map[string]string{"timestamp_ms": strconv.Itoa(timestampMs)}
	resp, err := h.postMultipart(ctx, "landmarks", url+"/landmarks", "frame.jpg", bytes.NewReader(jpeg), fields)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out LandmarksResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("landmarks decode: %w", err)
	}
	return &out, nil
}
