// Package faceclient talks to the face recognition sidecar over HTTP. The
// sidecar owns model inference and the appearance tracker; this client only
// moves frames and embeddings across the boundary.
package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/services"
	"turnstile/internal/vision"
)

// Face is one detected face in a frame.
type Face struct {
	BBox       vision.Rect `json:"bbox"`
	Confidence float64     `json:"confidence"`
	Embedding  []float32   `json:"embedding"`
}

// Track is one tracker assignment for the current frame.
type Track struct {
	ID   string      `json:"track_id"`
	BBox vision.Rect `json:"bbox"`
}

// ImageIdentity is the result of re-identifying a stored capture image.
type ImageIdentity struct {
	Identity       vision.Identity
	FaceDetected   bool
	FaceConfidence float64
}

// Client calls the face recognition sidecar.
type Client struct {
	baseURL     string
	http        *http.Client
	jpegQuality int
}

// New builds a client from the recognition config section.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:     cfg.Recognition.FaceEngineURL,
		http:        &http.Client{Timeout: cfg.FaceEngineTimeout()},
		jpegQuality: cfg.Engine.CaptureJPEGQuality,
	}
}

// NewWithURL builds a client against an explicit endpoint, mainly for tests.
func NewWithURL(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		http:        &http.Client{Timeout: timeout},
		jpegQuality: 85,
	}
}

// Detect finds faces in a JPEG frame and returns their boxes, detector
// confidences, and embeddings.
func (c *Client) Detect(ctx context.Context, jpegFrame []byte) ([]Face, error) {
	payload := map[string]any{"image": base64.StdEncoding.EncodeToString(jpegFrame)}
	var out struct {
		Faces []Face `json:"faces"`
	}
	if err := c.post(ctx, "/detect", payload, &out); err != nil {
		return nil, err
	}
	return out.Faces, nil
}

// DetectInRegion runs detection restricted to one region of a decoded frame.
// The region is cropped and sent as a regular detection request; returned
// face boxes are mapped back to full-frame coordinates.
func (c *Client) DetectInRegion(ctx context.Context, frame image.Image, region vision.Rect) ([]Face, error) {
	bounds := frame.Bounds()
	clamped := region.Clamp(bounds.Dx(), bounds.Dy())
	if clamped.Empty() {
		return nil, nil
	}
	crop, err := vision.EncodeJPEG(vision.CropImage(frame, clamped), c.jpegQuality)
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptData, "faceclient", "detect region", "encode region crop", err)
	}
	faces, err := c.Detect(ctx, crop)
	if err != nil {
		return nil, err
	}
	for i := range faces {
		faces[i].BBox = faces[i].BBox.Translate(clamped.X0, clamped.Y0)
	}
	return faces, nil
}

// Identify matches a face embedding against the sidecar's enrolled gallery.
// A zero-confidence unknown result is a valid answer, not an error.
func (c *Client) Identify(ctx context.Context, embedding []float32) (vision.Identity, error) {
	payload := map[string]any{"embedding": embedding}
	var out identityPayload
	if err := c.post(ctx, "/identify", payload, &out); err != nil {
		return vision.Identity{}, err
	}
	return out.toIdentity(), nil
}

// UpdateTracks advances the appearance tracker with this frame's detection
// boxes and returns the live track assignments.
func (c *Client) UpdateTracks(ctx context.Context, jpegFrame []byte, boxes []vision.Rect) ([]Track, error) {
	if boxes == nil {
		boxes = []vision.Rect{}
	}
	payload := map[string]any{
		"image": base64.StdEncoding.EncodeToString(jpegFrame),
		"boxes": boxes,
	}
	var out struct {
		Tracks []Track `json:"tracks"`
	}
	if err := c.post(ctx, "/track", payload, &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}

// IdentifyImage re-runs detection and identification on a stored capture,
// used when an admin re-checks an unknown entry against the staff gallery.
func (c *Client) IdentifyImage(ctx context.Context, jpegImage []byte) (ImageIdentity, error) {
	payload := map[string]any{"image": base64.StdEncoding.EncodeToString(jpegImage)}
	var out struct {
		identityPayload
		FaceDetected   bool    `json:"face_detected"`
		FaceConfidence float64 `json:"face_confidence"`
	}
	if err := c.post(ctx, "/identify_image", payload, &out); err != nil {
		return ImageIdentity{}, err
	}
	return ImageIdentity{
		Identity:       out.toIdentity(),
		FaceDetected:   out.FaceDetected,
		FaceConfidence: out.FaceConfidence,
	}, nil
}

// LatestFrame fetches the newest camera frame as JPEG bytes. The sidecar
// owns the capture device and its hotplug recovery; a 204 means no frame
// has arrived yet.
func (c *Client) LatestFrame(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/frame", nil)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "faceclient", "frame", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError("frame", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, services.Wrap(services.ErrTransient, "faceclient", "frame", "no frame available", nil)
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.Wrap(services.ErrExternalService, "faceclient", "frame",
			fmt.Sprintf("face engine returned %s: %s", resp.Status, bytes.TrimSpace(detail)), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "faceclient", "frame", "read frame body", err)
	}
	return data, nil
}

// Health checks whether the sidecar is reachable and ready.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "faceclient", "health", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError("health", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return services.Wrap(services.ErrExternalService, "faceclient", "health",
			fmt.Sprintf("face engine unhealthy: %s", resp.Status), nil)
	}
	return nil
}

// BaseURL returns the configured sidecar endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

type identityPayload struct {
	PersonType string  `json:"person_type"`
	PersonID   string  `json:"person_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

func (p identityPayload) toIdentity() vision.Identity {
	kind := vision.PersonKind(p.PersonType)
	switch kind {
	case vision.KindStaff, vision.KindCustomer, vision.KindUnknown:
	default:
		kind = vision.KindUnknown
	}
	return vision.Identity{
		Kind:       kind,
		StaffID:    p.PersonID,
		Name:       p.Name,
		Confidence: p.Confidence,
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	op := "post " + path

	body, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrExternalService, "faceclient", op, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrExternalService, "faceclient", op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.ErrExternalService, "faceclient", op,
			fmt.Sprintf("face engine returned %s: %s", resp.Status, bytes.TrimSpace(detail)), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternalService, "faceclient", op, "decode response", err)
	}
	return nil
}

func (c *Client) transportError(op string, err error) error {
	marker := services.ErrExternalService
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		marker = services.ErrTimeout
	}
	return services.Wrap(marker, "faceclient", op, "face engine request failed", err)
}
