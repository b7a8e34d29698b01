package store

import (
	"context"

	"dust2cash/internal/models"
)

type ClientStore struct {
	db DB
}

func NewClientStore(db DB) *ClientStore {
	return &ClientStore{db: db}
}

const clientColumns = `id, user_id, first_name, last_name, phone_number, email, created_at`

// GetOrCreate returns the caller's profile, creating an empty one seeded with
// the account email on first access.
func (s *ClientStore) GetOrCreate(ctx context.Context, id, userID, email string) (models.ClientProfile, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO client_profiles (id, user_id, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, id, userID, email); err != nil {
		return models.ClientProfile{}, err
	}
	return s.GetByUserID(ctx, userID)
}

func (s *ClientStore) GetByUserID(ctx context.Context, userID string) (models.ClientProfile, error) {
	var profile models.ClientProfile
	err := s.db.GetContext(ctx, &profile, `SELECT `+clientColumns+` FROM client_profiles WHERE user_id = $1`, userID)
	return profile, notFound(err)
}

func (s *ClientStore) Update(ctx context.Context, profile models.ClientProfile) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE client_profiles
		SET first_name = $1, last_name = $2, phone_number = $3, email = $4
		WHERE user_id = $5
	`, profile.FirstName, profile.LastName, profile.PhoneNumber, profile.Email, profile.UserID)
	rows, err := rowsAffected(result, err)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ClientStore) Contact(ctx context.Context, clientID string) (models.Contact, error) {
	var contact models.Contact
	err := s.db.GetContext(ctx, &contact, `
		SELECT user_id, TRIM(first_name || ' ' || last_name) AS name, email
		FROM client_profiles
		WHERE id = $1
	`, clientID)
	return contact, notFound(err)
}
