package storage

import (
	"context"
	"fmt"
)

func (s *SQLStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM admin_users WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return n > 0, nil
}

// GrantAdmin adds the user to admin_users. Granting twice is a no-op.
func (s *SQLStore) GrantAdmin(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO admin_users (user_id, created_at) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to grant admin: %w", err)
	}
	return nil
}
