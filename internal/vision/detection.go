package vision

// PersonKind classifies who a detection resolved to.
type PersonKind string

const (
	// KindStaff marks detections matched to the staff database.
	KindStaff PersonKind = "staff"
	// KindCustomer marks non-staff people in customer-facing deployments.
	KindCustomer PersonKind = "customer"
	// KindUnknown marks detections with no usable identity.
	KindUnknown PersonKind = "unknown"
)

// Identity is the recognition result attached to a detection.
type Identity struct {
	Kind PersonKind
	// StaffID and Name are set only when Kind is KindStaff.
	StaffID string
	Name    string
	// Confidence is the recognition score in [0,1]. Zero means the face
	// embedding matched nothing in the database.
	Confidence float64
}

// IsStaff reports whether the identity resolved to a staff member.
func (id Identity) IsStaff() bool { return id.Kind == KindStaff && id.StaffID != "" }

// Detection is one tracked person in a frame as reported by the face engine.
type Detection struct {
	// TrackID is the engine-assigned identifier that persists across frames.
	TrackID string
	// FaceBox is the face bounding box. Zero when no face was found for the
	// tracked body.
	FaceBox Rect
	// PersonBox is the full-body bounding box when the engine reports one.
	PersonBox Rect
	// FaceConfidence is the detector's confidence for FaceBox in [0,1].
	FaceConfidence float64
	// Embedding is the face feature vector, empty when no face was usable.
	Embedding []float32
	Identity  Identity
}

// HasFace reports whether the detection carries a usable face box.
func (d Detection) HasFace() bool { return !d.FaceBox.Empty() }

// HasEmbedding reports whether a face feature vector was extracted.
func (d Detection) HasEmbedding() bool { return len(d.Embedding) > 0 }

// BestBox prefers the person box and falls back to the face box, for callers
// that need any anchor rectangle for cropping or overlap tests.
func (d Detection) BestBox() Rect {
	if !d.PersonBox.Empty() {
		return d.PersonBox
	}
	return d.FaceBox
}
