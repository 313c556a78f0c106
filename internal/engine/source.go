package engine

import (
	"context"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/faceclient"
	"turnstile/internal/services"
	"turnstile/internal/vision"
)

// CameraSource pulls frames from the face engine sidecar, which owns the
// capture device and recovers from camera unplug on its side.
type CameraSource struct {
	client  *faceclient.Client
	timeout time.Duration
	seq     uint64
}

// NewCameraSource wires a frame source to the sidecar's frame feed.
func NewCameraSource(cfg *config.Config, client *faceclient.Client) *CameraSource {
	timeout := time.Duration(cfg.Engine.FrameTimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &CameraSource{client: client, timeout: timeout}
}

// Next fetches and decodes the sidecar's latest frame.
func (s *CameraSource) Next(ctx context.Context) (vision.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.LatestFrame(ctx)
	if err != nil {
		return vision.Frame{}, err
	}
	img, err := vision.Decode(data)
	if err != nil {
		return vision.Frame{}, services.Wrap(services.ErrCorruptData, "engine", "next frame", "decode frame", err)
	}
	s.seq++
	return vision.Frame{Image: img, Timestamp: time.Now(), Sequence: s.seq}, nil
}
