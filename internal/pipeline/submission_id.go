package pipeline

import (
	"fmt"

	"github.com/google/uuid"
)

func parseSubmissionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid submission id %q: %w", raw, err)
	}
	return id, nil
}
