package movement

// lowerBackKeypoints is shared by every lower back movement.
var lowerBackKeypoints = []string{"Neck", "Hip", "LHip", "RHip", "LShoulder", "RShoulder"}

// Catalog returns fresh definitions for every supported movement. The
// (body_part, movement_type) pairs are wire keys: add entries, never rename.
func Catalog() []*Definition {
	return []*Definition{
		{
			BodyPart:        "lower_back",
			MovementType:    "flexion",
			PrimaryAngle:    "trunk",
			SecondaryAngles: []string{"pelvis", "right hip", "left hip"},
			Transform:       Transform{Kind: Complement180},
			Normal:          Range{0, 60},
			Safe:            Range{0, 90},
			Plane:           Sagittal,
			Keypoints:       lowerBackKeypoints,
		},
		{
			BodyPart:        "lower_back",
			MovementType:    "extension",
			PrimaryAngle:    "trunk",
			SecondaryAngles: []string{"pelvis"},
			Transform:       Transform{Kind: OffsetBy, K: -180},
			Normal:          Range{-30, 0},
			Safe:            Range{-45, 0},
			Plane:           Sagittal,
			Keypoints:       lowerBackKeypoints,
			Checks: []Check{
				PrimaryAtLeast(-30, "Please stand upright before extending"),
			},
		},
		{
			BodyPart:        "lower_back",
			MovementType:    "lateral_flexion",
			PrimaryAngle:    "lateral_trunk",
			SecondaryAngles: []string{"shoulders", "pelvis"},
			Transform:       Transform{Kind: Identity},
			Normal:          Range{-30, 30},
			Safe:            Range{-45, 45},
			Plane:           Frontal,
			Keypoints:       lowerBackKeypoints,
		},
		{
			BodyPart:        "lower_back",
			MovementType:    "rotation",
			PrimaryAngle:    "trunk_rotation",
			SecondaryAngles: []string{"shoulders", "pelvis"},
			Transform:       Transform{Kind: Identity},
			Normal:          Range{-45, 45},
			Safe:            Range{-60, 60},
			Plane:           Frontal,
			Keypoints:       lowerBackKeypoints,
			Checks: []Check{
				UprightTrunk(30, "Please stand more upright for rotation measurement"),
			},
		},

		{
			BodyPart:        "shoulder",
			MovementType:    "flexion",
			PrimaryAngle:    "right shoulder",
			SecondaryAngles: []string{"trunk"},
			Normal:          Range{0, 180},
			Safe:            Range{0, 190},
			Plane:           Sagittal,
		},
		{
			BodyPart:        "shoulder",
			MovementType:    "extension",
			PrimaryAngle:    "right shoulder",
			SecondaryAngles: []string{"trunk"},
			Normal:          Range{0, 60},
			Safe:            Range{0, 80},
			Plane:           Sagittal,
		},
		{
			BodyPart:        "shoulder",
			MovementType:    "abduction",
			PrimaryAngle:    "right shoulder",
			SecondaryAngles: []string{"trunk"},
			Normal:          Range{0, 180},
			Safe:            Range{0, 190},
			Plane:           Frontal,
		},

		{
			BodyPart:     "elbow",
			MovementType: "flexion",
			PrimaryAngle: "right elbow",
			Transform:    Transform{Kind: Complement180},
			Normal:       Range{0, 145},
			Safe:         Range{0, 160},
			Plane:        Sagittal,
		},
		// Joint angles are unsigned, so extension reads 0 when straight and
		// negative when bent. Hyperextension is not observable.
		{
			BodyPart:     "elbow",
			MovementType: "extension",
			PrimaryAngle: "right elbow",
			Transform:    Transform{Kind: OffsetBy, K: -180},
			Normal:       Range{0, 10},
			Safe:         Range{-10, 10},
			Plane:        Sagittal,
		},

		{
			BodyPart:        "hip",
			MovementType:    "flexion",
			PrimaryAngle:    "right hip",
			SecondaryAngles: []string{"pelvis", "trunk"},
			Transform:       Transform{Kind: Complement180},
			Normal:          Range{0, 120},
			Safe:            Range{0, 140},
			Plane:           Sagittal,
		},
		{
			BodyPart:        "hip",
			MovementType:    "extension",
			PrimaryAngle:    "right hip",
			SecondaryAngles: []string{"pelvis"},
			Transform:       Transform{Kind: Complement180},
			Normal:          Range{0, 30},
			Safe:            Range{0, 40},
			Plane:           Sagittal,
		},
		{
			BodyPart:        "hip",
			MovementType:    "abduction",
			PrimaryAngle:    "right hip",
			SecondaryAngles: []string{"pelvis"},
			Transform:       Transform{Kind: Complement180},
			Normal:          Range{0, 45},
			Safe:            Range{0, 60},
			Plane:           Frontal,
		},

		{
			BodyPart:     "knee",
			MovementType: "flexion",
			PrimaryAngle: "right knee",
			Transform:    Transform{Kind: Complement180},
			Normal:       Range{0, 135},
			Safe:         Range{0, 160},
			Plane:        Sagittal,
		},
		// Same reading as elbow extension.
		{
			BodyPart:     "knee",
			MovementType: "extension",
			PrimaryAngle: "right knee",
			Transform:    Transform{Kind: OffsetBy, K: -180},
			Normal:       Range{0, 10},
			Safe:         Range{-10, 10},
			Plane:        Sagittal,
		},

		{
			BodyPart:     "ankle",
			MovementType: "dorsiflexion",
			PrimaryAngle: "right ankle",
			Transform:    Transform{Kind: ComplementOf, K: 90},
			Normal:       Range{0, 20},
			Safe:         Range{0, 30},
			Plane:        Sagittal,
		},
		{
			BodyPart:     "ankle",
			MovementType: "plantarflexion",
			PrimaryAngle: "right ankle",
			Transform:    Transform{Kind: OffsetBy, K: -90},
			Normal:       Range{0, 50},
			Safe:         Range{0, 60},
			Plane:        Sagittal,
		},
	}
}

// NewCatalog builds a frozen registry holding Catalog().
func NewCatalog() (*Registry, error) {
	reg := NewRegistry()
	for _, def := range Catalog() {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return reg, nil
}

// MustCatalog is NewCatalog for startup paths where the built-in table must load.
func MustCatalog() *Registry {
	reg, err := NewCatalog()
	if err != nil {
		panic(err)
	}
	return reg
}
