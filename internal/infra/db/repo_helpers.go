package db

import (
	"errors"
	"fmt"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

var errDBUnavailable = errors.New("db unavailable")

func writeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
}

func readErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageRead, err)
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}
