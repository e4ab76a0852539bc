package scoring

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/trialmesh/aster/pkg/models"
)

// Calibration methods
const (
	CalibrationSigmoid  = "sigmoid"
	CalibrationPlatt    = "platt"
	CalibrationIdentity = "identity"
)

// LoadArtifact reads and validates a calibration artifact. Any missing or
// malformed required field is an error; callers treat that as fatal so the
// process never scores with a partial artifact.
func LoadArtifact(path string) (*models.CalibrationArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading calibration artifact %s", path)
	}

	var artifact models.CalibrationArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, errors.Wrapf(err, "parsing calibration artifact %s", path)
	}

	if err := ValidateArtifact(&artifact); err != nil {
		return nil, errors.Wrapf(err, "invalid calibration artifact %s", path)
	}

	return &artifact, nil
}

// ValidateArtifact checks the structural contract of an artifact
func ValidateArtifact(artifact *models.CalibrationArtifact) error {
	if artifact.Version == "" {
		return errors.New("version is required")
	}
	if len(artifact.Weights) == 0 {
		return errors.New("weights are required")
	}
	for name, w := range artifact.Weights {
		if !knownFeature(name) {
			return errors.Errorf("weight references unknown feature %q", name)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return errors.Errorf("weight for %q is not finite", name)
		}
	}

	switch artifact.Calibration.Method {
	case CalibrationSigmoid, CalibrationIdentity:
	case CalibrationPlatt:
		// A negative slope would map higher raw scores to lower probabilities.
		if artifact.Calibration.A < 0 {
			return errors.Errorf("platt slope must be non-negative, got %v", artifact.Calibration.A)
		}
	case "":
		return errors.New("calibration method is required")
	default:
		return errors.Errorf("unknown calibration method %q", artifact.Calibration.Method)
	}

	th := artifact.Thresholds
	if th.TauAccept <= 0 || th.TauAccept > 1 {
		return errors.New("tau_accept must be in (0, 1]")
	}
	if th.ReviewLow < 0 || th.ReviewLow > th.TauAccept {
		return errors.New("review_low must be in [0, tau_accept]")
	}
	if th.MinTop2Margin < 0 {
		return errors.New("min_top2_margin must be non-negative")
	}

	return nil
}

// Calibrate maps a raw score to a probability, monotonic non-decreasing in
// the raw score for every supported method.
func Calibrate(cal models.Calibration, rawScore float64) float64 {
	switch cal.Method {
	case CalibrationPlatt:
		return logistic(cal.A*rawScore + cal.B)
	case CalibrationIdentity:
		return math.Min(1, math.Max(0, rawScore))
	default:
		return logistic(rawScore)
	}
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func knownFeature(name string) bool {
	for _, known := range FeatureNames {
		if name == known {
			return true
		}
	}
	return false
}
