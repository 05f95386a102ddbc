package common

import (
	"errors"

	"thirdcoast.systems/scanwatch/internal/db"
)

// StoreError maps a store error onto an HTTP error.
func StoreError(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound("incident not found")
	}
	return ErrInternal("store unavailable")
}
