package web_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"turnstile/internal/faceclient"
	"turnstile/internal/logging"
	"turnstile/internal/testsupport"
	"turnstile/internal/web"
)

type staffPayload struct {
	Success bool `json:"success"`
	Created bool `json:"created"`
	Staff   struct {
		StaffID    string `json:"staffId"`
		Name       string `json:"name"`
		Department string `json:"department"`
		EmployeeID string `json:"employeeId"`
		Active     bool   `json:"active"`
	} `json:"staff"`
}

func TestStaffUpsertWithEmbedding(t *testing.T) {
	srv, st, _ := openServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/staff", map[string]any{
		"staffId":    "EMP001",
		"name":       "Ana  Alvarez",
		"department": "Ops",
		"employeeId": "E-1001",
		"embedding":  []float32{0.6, 0.8},
	})
	wantStatus(t, rec, http.StatusCreated)

	var resp staffPayload
	decodeJSON(t, rec, &resp)
	if !resp.Success || !resp.Created {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	// Interior whitespace collapses during normalization.
	if resp.Staff.Name != "Ana Alvarez" || resp.Staff.Department != "Ops" || !resp.Staff.Active {
		t.Errorf("staff = %+v", resp.Staff)
	}

	embeddings, err := st.StaffEmbeddings(context.Background())
	if err != nil {
		t.Fatalf("StaffEmbeddings: %v", err)
	}
	if len(embeddings) != 1 || len(embeddings[0].Vector) != 2 {
		t.Fatalf("unexpected stored embeddings: %#v", embeddings)
	}

	// A second post without enrollment data updates the profile only.
	rec = do(t, srv, http.MethodPost, "/api/v1/staff", map[string]any{
		"staffId":    "EMP001",
		"name":       "Ana A. Alvarez",
		"department": "Facilities",
	})
	wantStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &resp)
	if resp.Created {
		t.Error("expected created=false on update")
	}
	if resp.Staff.Name != "Ana A. Alvarez" || resp.Staff.Department != "Facilities" {
		t.Errorf("updated staff = %+v", resp.Staff)
	}
	embeddings, err = st.StaffEmbeddings(context.Background())
	if err != nil {
		t.Fatalf("StaffEmbeddings after update: %v", err)
	}
	if len(embeddings) != 1 || len(embeddings[0].Vector) != 2 {
		t.Fatalf("profile update must not clobber the embedding: %#v", embeddings)
	}
}

func TestStaffUpsertValidation(t *testing.T) {
	srv, _, _ := openServer(t)

	// Name missing.
	rec := do(t, srv, http.MethodPost, "/api/v1/staff", map[string]any{"staffId": "EMP001"})
	wantStatus(t, rec, http.StatusBadRequest)

	// New member without enrollment data.
	rec = do(t, srv, http.MethodPost, "/api/v1/staff", map[string]any{
		"staffId": "EMP001",
		"name":    "Ana Alvarez",
	})
	wantStatus(t, rec, http.StatusBadRequest)
	var resp struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Kind != "validation" {
		t.Errorf("kind = %q, want validation", resp.Kind)
	}
}

func TestStaffUpsertRejectsDuplicateFace(t *testing.T) {
	srv, st, _ := openServer(t)
	testsupport.SeedStaff(t, st, "EMP001", "Ana Alvarez", []float32{0.6, 0.8})

	rec := do(t, srv, http.MethodPost, "/api/v1/staff", map[string]any{
		"staffId":   "EMP002",
		"name":      "Impostor",
		"embedding": []float32{0.6, 0.8},
	})
	wantStatus(t, rec, http.StatusBadRequest)

	var resp struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Error == "" {
		t.Fatal("expected an error message naming the existing staff member")
	}

	// Re-enrolling the same member with their own face is allowed.
	rec = do(t, srv, http.MethodPost, "/api/v1/staff", map[string]any{
		"staffId":   "EMP001",
		"name":      "Ana Alvarez",
		"embedding": []float32{0.6, 0.8},
	})
	wantStatus(t, rec, http.StatusOK)
}

func TestStaffEnrollFromPhotos(t *testing.T) {
	photo := testsupport.JPEGBytes(t, 96, 96)
	sidecar := fakeSidecar(t, map[string]http.HandlerFunc{
		"/detect": func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Image string `json:"image"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"faces":[
				{"bbox":[10,10,60,70],"confidence":0.95,"embedding":[0.6,0.8]},
				{"bbox":[0,0,8,8],"confidence":0.4,"embedding":[0.1,0.1]}
			]}`))
		},
	})

	cfg := testsupport.NewConfig(t, testsupport.WithFaceEngineURL(sidecar.URL))
	cfg.Web.AuthSecret = ""
	st := testsupport.MustOpenStore(t, cfg)
	srv, err := web.NewServer(cfg, st, logging.NewNop(),
		web.WithFaceClient(faceclient.New(cfg)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	encoded := base64.StdEncoding.EncodeToString(photo)
	rec := do(t, srv, http.MethodPost, "/api/v1/staff", map[string]any{
		"staffId": "EMP003",
		"name":    "Caro Mendez",
		"photos":  []string{encoded, "data:image/jpeg;base64," + encoded, encoded},
	})
	wantStatus(t, rec, http.StatusCreated)

	embeddings, err := st.StaffEmbeddings(context.Background())
	if err != nil {
		t.Fatalf("StaffEmbeddings: %v", err)
	}
	if len(embeddings) != 1 {
		t.Fatalf("expected one enrolled embedding, got %d", len(embeddings))
	}
	// The best face per shot is identical across shots, so the mean is it.
	vec := embeddings[0].Vector
	if len(vec) != 2 || vec[0] != 0.6 || vec[1] != 0.8 {
		t.Errorf("stored vector = %v", vec)
	}

	member, err := st.StaffByID(context.Background(), "EMP003")
	if err != nil || member == nil {
		t.Fatalf("StaffByID: %v %v", member, err)
	}
}

func TestStaffListGetDeactivate(t *testing.T) {
	srv, st, _ := openServer(t)
	testsupport.SeedStaff(t, st, "EMP001", "Ana Alvarez", []float32{1, 0})
	testsupport.SeedStaff(t, st, "EMP002", "Ben Osei", []float32{0, 1})

	rec := get(t, srv, "/api/v1/staff/EMP002")
	wantStatus(t, rec, http.StatusOK)
	var one struct {
		Staff struct {
			StaffID string `json:"staffId"`
			Name    string `json:"name"`
		} `json:"staff"`
	}
	decodeJSON(t, rec, &one)
	if one.Staff.Name != "Ben Osei" {
		t.Errorf("staff = %+v", one.Staff)
	}

	rec = get(t, srv, "/api/v1/staff/EMP404")
	wantStatus(t, rec, http.StatusNotFound)

	rec = do(t, srv, http.MethodPost, "/api/v1/staff/EMP002/deactivate", nil)
	wantStatus(t, rec, http.StatusOK)

	rec = get(t, srv, "/api/v1/staff?active=true")
	wantStatus(t, rec, http.StatusOK)
	var list struct {
		Staff []struct {
			StaffID string `json:"staffId"`
		} `json:"staff"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Staff) != 1 || list.Staff[0].StaffID != "EMP001" {
		t.Errorf("active roster = %+v", list.Staff)
	}

	rec = get(t, srv, "/api/v1/staff")
	decodeJSON(t, rec, &list)
	if len(list.Staff) != 2 {
		t.Errorf("full roster size = %d, want 2", len(list.Staff))
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/staff/EMP404/deactivate", nil)
	wantStatus(t, rec, http.StatusNotFound)
}
