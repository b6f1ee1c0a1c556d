package services

import (
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/installhub/api/internal/repositories"
)

var (
	// ErrQuoteInvalidInput signals missing or malformed quote request data.
	ErrQuoteInvalidInput = errors.New("quote service: invalid input")
	// ErrQuoteUnknownItem is returned when a quote line references an item missing from the catalog.
	ErrQuoteUnknownItem = errors.New("quote service: unknown quote item")
	// ErrQuoteNotFound indicates no quote exists for the provided id.
	ErrQuoteNotFound = errors.New("quote service: quote not found")
	// ErrProjectNotFound indicates the referenced project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrShipmentNotFound indicates the project has no shipment record yet.
	ErrShipmentNotFound = errors.New("shipment service: shipment not found")
	// ErrServiceUnavailable marks a transient store outage.
	ErrServiceUnavailable = errors.New("service unavailable")
)

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}

func isRepoUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return false
}

func newULID() string {
	return ulid.Make().String()
}
