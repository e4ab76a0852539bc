package models

// Thresholds drive the accept/review/reject decision policy.
type Thresholds struct {
	TauAccept           float64 `json:"tau_accept"`
	ReviewLow           float64 `json:"review_low"`
	MinTop2Margin       float64 `json:"min_top2_margin"`
	RequireUniqueWinner bool    `json:"require_unique_winner"`
}

// Calibration maps a raw linear-model score to a probability. Monotonic
// non-decreasing, fit offline; the engine only applies it.
type Calibration struct {
	Method string  `json:"method"` // sigmoid, platt, identity
	A      float64 `json:"a,omitempty"`
	B      float64 `json:"b,omitempty"`
}

// CalibrationArtifact is the versioned, immutable scoring bundle loaded at
// process start. Missing required fields are fatal; the artifact is never
// partially applied.
type CalibrationArtifact struct {
	Version     string             `json:"version"`
	Weights     map[string]float64 `json:"weights"`
	Intercept   float64            `json:"intercept"`
	Calibration Calibration        `json:"calibration"`
	Thresholds  Thresholds         `json:"thresholds"`
}
