package store

import (
	"context"
	"time"

	"dust2cash/internal/models"

	"github.com/shopspring/decimal"
)

// PricingStore holds the single pricing_settings row (id = 1).
type PricingStore struct {
	db DB
}

func NewPricingStore(db DB) *PricingStore {
	return &PricingStore{db: db}
}

func (s *PricingStore) Get(ctx context.Context) (models.PricingSettings, error) {
	var settings models.PricingSettings
	err := s.db.GetContext(ctx, &settings, `
		SELECT exchange_rate, transaction_fee_percent, updated_by, updated_at
		FROM pricing_settings
		WHERE id = 1
	`)
	return settings, notFound(err)
}

func (s *PricingStore) Update(ctx context.Context, tx Execer, rate, feePercent decimal.Decimal, actorID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pricing_settings (id, exchange_rate, transaction_fee_percent, updated_by, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET exchange_rate = EXCLUDED.exchange_rate,
		    transaction_fee_percent = EXCLUDED.transaction_fee_percent,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = EXCLUDED.updated_at
	`, rate, feePercent, actorID, at)
	return err
}
