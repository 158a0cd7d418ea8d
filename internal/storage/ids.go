package storage

import (
	"strings"

	"github.com/google/uuid"

	"riskbot/internal/models"
)

const conditionIDLength = 5

// NewRiskID returns a 32 character hex identifier for a risk
func NewRiskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewConditionID returns a short id not used by any of the existing conditions
func NewConditionID(existing []models.Condition) string {
	for {
		id := NewRiskID()[:conditionIDLength]
		taken := false
		for _, c := range existing {
			if c.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
	}
}
