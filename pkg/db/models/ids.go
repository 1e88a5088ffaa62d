package models

import "github.com/google/uuid"

// assignID fills a zero primary key before insert so rows get stable IDs on
// every driver, including the sqlite databases used in tests.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
