package domain

import "github.com/google/uuid"

// Company is one entry of the monitored roster. Ticker is unique across the
// configured universe. Keywords drive source search queries; an empty list
// means adapters fall back to the name and ticker.
type Company struct {
	ID       uuid.UUID
	Ticker   string
	Name     string
	Industry string
	Keywords []string
}
