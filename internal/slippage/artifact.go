package slippage

import (
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"execsim/internal/domain"
)

// artifactVersion is bumped on any incompatible payload change.
const artifactVersion = 1

// artifactPayload is the on-disk form of a trained model: the regressor, its
// scaler and the ordered feature-name list travel as one unit.
type artifactPayload struct {
	Version   int
	ID        string
	Estimator string // "regression" | "adaptive"
	Model     string // regressor family tag
	Features  []string
	Scaler    standardScaler
	Linear    *linearCoef
	Forest    []*treeNode
	Boost     *boostedEnsemble
	SavedAt   time.Time
}

func saveArtifact(path, estimator, model string, fitted *fittedState) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer f.Close()

	payload := artifactPayload{
		Version:   artifactVersion,
		ID:        uuid.NewString(),
		Estimator: estimator,
		Model:     model,
		Features:  fitted.Features,
		Scaler:    fitted.Scaler,
		Linear:    fitted.Linear,
		Forest:    fitted.Forest,
		Boost:     fitted.Boost,
		SavedAt:   time.Now().UTC(),
	}
	if err := gob.NewEncoder(f).Encode(&payload); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}

func loadArtifact(path, estimator, model string) (*fittedState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var payload artifactPayload
	if err := gob.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if payload.Version != artifactVersion {
		return nil, &domain.ConfigError{
			Field: "artifact",
			Err:   fmt.Errorf("version %d not supported (want %d)", payload.Version, artifactVersion),
		}
	}
	if payload.Estimator != estimator || payload.Model != model {
		return nil, &domain.ConfigError{
			Field: "artifact",
			Err: fmt.Errorf("artifact holds %s/%s, estimator is %s/%s",
				payload.Estimator, payload.Model, estimator, model),
		}
	}
	return &fittedState{
		Features: payload.Features,
		Scaler:   payload.Scaler,
		Linear:   payload.Linear,
		Forest:   payload.Forest,
		Boost:    payload.Boost,
	}, nil
}
