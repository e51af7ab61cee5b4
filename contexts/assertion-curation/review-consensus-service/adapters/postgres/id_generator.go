package postgresadapter

import (
	"context"

	"github.com/google/uuid"
)

// UUIDGenerator implements ports.IDGenerator. Version 7 values sort by
// creation time, which keeps entry and outbox ids index-friendly.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString(), nil
	}
	return id.String(), nil
}
