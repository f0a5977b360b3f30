package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/fieldback/idgen"
)

// SeedSuperAdmin creates the landlord super-admin account on first boot.
// The password hash is precomputed by the caller (auth.HashPassword).
// Existing accounts are left untouched so operator password changes
// survive restarts.
func (s *Store) SeedSuperAdmin(ctx context.Context, username, passwordHash string) error {
	if username == "" || passwordHash == "" {
		return errors.New("catalog: seed requires username and password hash")
	}
	_, err := s.GetLandlordAccount(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("catalog: seed lookup: %w", err)
	}

	acc := &LoginAccount{
		ID:           idgen.Prefixed("acc_", idgen.Default)(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         RoleSuperAdmin,
	}
	if err := s.InsertLoginAccount(ctx, acc); err != nil {
		return fmt.Errorf("catalog: seed insert: %w", err)
	}
	return nil
}
