package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/unicode/norm"

	"turnstile/internal/api"
	"turnstile/internal/embedding"
	"turnstile/internal/logging"
	"turnstile/internal/services"
	"turnstile/internal/store"
)

const (
	// maxEnrollBody bounds the upsert request; enrollment photos arrive
	// base64-inlined.
	maxEnrollBody = 32 << 20

	// enrollDuplicateSimilarity flags an enrollment whose face already
	// belongs to another staff member.
	enrollDuplicateSimilarity = 0.85
)

type staffListResponse struct {
	Success bool `json:"success"`
	api.StaffListResponse
}

type staffResponse struct {
	Success bool            `json:"success"`
	Staff   api.StaffMember `json:"staff"`
}

type staffUpsertResponse struct {
	Success bool            `json:"success"`
	Created bool            `json:"created"`
	Staff   api.StaffMember `json:"staff"`
}

// staffUpsertRequest enrolls or updates a staff member. The embedding can be
// passed directly or derived from base64 JPEG enrollment photos; with
// neither, an existing member gets a profile-only update.
type staffUpsertRequest struct {
	StaffID       string    `json:"staffId"`
	Name          string    `json:"name"`
	Department    string    `json:"department"`
	EmployeeID    string    `json:"employeeId"`
	Embedding     []float32 `json:"embedding"`
	Photos        []string  `json:"photos"`
	Photo         string    `json:"photo"`
	ShowcasePhoto string    `json:"showcasePhoto"`
}

func (s *Server) handleStaffList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	members, err := s.store.AllStaff(r.Context(), !activeOnly)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staffListResponse{
		Success:           true,
		StaffListResponse: api.StaffListResponse{Staff: api.FromStaffMembers(members)},
	})
}

func (s *Server) handleStaffGet(w http.ResponseWriter, r *http.Request) {
	staffID := chi.URLParam(r, "id")
	member, err := s.store.StaffByID(r.Context(), staffID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if member == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "web", "get staff",
			fmt.Sprintf("staff %s not enrolled", staffID), nil))
		return
	}
	writeJSON(w, http.StatusOK, staffResponse{Success: true, Staff: api.FromStaffMember(member)})
}

func (s *Server) handleStaffUpsert(w http.ResponseWriter, r *http.Request) {
	var req staffUpsertRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxEnrollBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "web", "upsert staff",
			"invalid request body", err))
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.Name = normalizeName(req.Name)
	if req.StaffID == "" || req.Name == "" {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "web", "upsert staff",
			"staffId and name are required", nil))
		return
	}

	ctx := r.Context()
	existing, err := s.store.StaffByID(ctx, req.StaffID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	photos, err := decodePhotos(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	vector := req.Embedding
	if len(vector) == 0 && len(photos) > 0 {
		vector, err = s.enrollmentEmbedding(ctx, photos)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	if len(vector) == 0 {
		// Profile-only update; enrollment data stays untouched.
		if existing == nil {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "web", "upsert staff",
				"an embedding or enrollment photo is required for new staff", nil))
			return
		}
		if err := s.store.UpdateStaffProfile(ctx, req.StaffID, req.Name, req.Department, req.EmployeeID); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.respondStaff(w, r, req.StaffID, false)
		return
	}

	if err := s.checkDuplicateFace(ctx, req.StaffID, vector); err != nil {
		s.writeError(w, r, err)
		return
	}

	member := &store.StaffMember{
		StaffID:    req.StaffID,
		Name:       req.Name,
		Department: req.Department,
		EmployeeID: req.EmployeeID,
		Embedding:  vector,
		Active:     true,
	}
	if len(photos) > 0 {
		member.Photo = photos[0]
	}
	if req.ShowcasePhoto != "" {
		showcase, err := decodeBase64Image(req.ShowcasePhoto)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		member.ShowcasePhoto = showcase
	}
	if err := s.store.SaveStaff(ctx, member); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("staff enrolled",
		logging.String(logging.FieldStaffID, req.StaffID),
		logging.Int("photos", len(photos)),
		logging.Bool("updated", existing != nil))
	s.respondStaff(w, r, req.StaffID, existing == nil)
}

func (s *Server) handleStaffDeactivate(w http.ResponseWriter, r *http.Request) {
	staffID := chi.URLParam(r, "id")
	if err := s.store.DeactivateStaff(r.Context(), staffID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("staff deactivated", logging.String(logging.FieldStaffID, staffID))
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		StaffID string `json:"staffId"`
	}{Success: true, StaffID: staffID})
}

// respondStaff re-reads the saved row so the response carries the stored
// added-at timestamp.
func (s *Server) respondStaff(w http.ResponseWriter, r *http.Request, staffID string, created bool) {
	member, err := s.store.StaffByID(r.Context(), staffID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, staffUpsertResponse{
		Success: true,
		Created: created,
		Staff:   api.FromStaffMember(member),
	})
}

// enrollmentEmbedding runs detection on each enrollment photo and averages
// the best face vector per shot.
func (s *Server) enrollmentEmbedding(ctx context.Context, photos [][]byte) ([]float32, error) {
	vectors := make([][]float32, 0, len(photos))
	for i, photo := range photos {
		faces, err := s.faces.Detect(ctx, photo)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalService, "web", "enroll staff",
				fmt.Sprintf("detect faces in photo %d", i+1), err)
		}
		best := -1
		for j, face := range faces {
			if len(face.Embedding) == 0 {
				continue
			}
			if best < 0 || face.Confidence > faces[best].Confidence {
				best = j
			}
		}
		if best >= 0 {
			vectors = append(vectors, faces[best].Embedding)
		}
	}
	vector := embedding.Average(vectors)
	if vector == nil {
		return nil, services.Wrap(services.ErrValidation, "web", "enroll staff",
			"no face found in enrollment photos", nil)
	}
	return vector, nil
}

// checkDuplicateFace rejects an enrollment whose face matches a different
// staff member's stored embedding.
func (s *Server) checkDuplicateFace(ctx context.Context, staffID string, vector []float32) error {
	known, err := s.store.StaffEmbeddings(ctx)
	if err != nil {
		return err
	}
	for _, other := range known {
		if other.StaffID == staffID {
			continue
		}
		if embedding.Similar(vector, other.Vector, enrollDuplicateSimilarity) {
			return services.Wrap(services.ErrValidation, "web", "enroll staff",
				fmt.Sprintf("face already enrolled as staff %s", other.StaffID), nil)
		}
	}
	return nil
}

func decodePhotos(req staffUpsertRequest) ([][]byte, error) {
	encoded := req.Photos
	if len(encoded) == 0 && req.Photo != "" {
		encoded = []string{req.Photo}
	}
	photos := make([][]byte, 0, len(encoded))
	for i, item := range encoded {
		data, err := decodeBase64Image(item)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "web", "upsert staff",
				fmt.Sprintf("invalid photo %d", i+1), err)
		}
		photos = append(photos, data)
	}
	return photos, nil
}

// decodeBase64Image accepts raw base64 or a data URL.
func decodeBase64Image(value string) ([]byte, error) {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// normalizeName applies NFC and collapses interior whitespace so lookups
// and collation see one spelling per name.
func normalizeName(name string) string {
	return norm.NFC.String(strings.Join(strings.Fields(name), " "))
}
