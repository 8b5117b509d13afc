package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// DocumentSummary is the list-view projection of a document: metadata plus
// the aggregate risk picture, without the full text or version bodies.
type DocumentSummary struct {
	ID              string
	Title           string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClauseCount     int
	AcceptedCount   int
	HighRiskCount   int
	CurrentSequence string
}
