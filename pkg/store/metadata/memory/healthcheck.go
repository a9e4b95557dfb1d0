package memory

import (
	"context"
)

// Healthcheck verifies the store is operational.
//
// There are no external dependencies, so this only fails for a cancelled
// context or a closed store.
func (s *MemoryMetadataStore) Healthcheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.begin(ctx, "memory.Healthcheck")
}
