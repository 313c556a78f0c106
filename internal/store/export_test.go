package store

import "context"

// CorruptEmbeddingForTest overwrites a staff embedding blob with bytes the
// codec rejects, for exercising the skip-corrupt-rows path.
func (s *Store) CorruptEmbeddingForTest(ctx context.Context, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE staff SET embedding = ? WHERE staff_id = ?`,
		[]byte{0xde, 0xad, 0xbe, 0xef}, staffID)
	return err
}
