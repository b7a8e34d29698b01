package handlers

import (
	"net/http"
	"strconv"

	"dust2cash/internal/money"

	"github.com/shopspring/decimal"
)

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

const (
	maxLimit = 200
	maxPage  = 100000
)

// pagination reads page/limit query parameters. Both are capped so the
// offset stays well inside int range.
func pagination(r *http.Request, defaultLimit int) (int, int) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	page := parseInt(query.Get("page"), 1)
	if page > maxPage {
		page = maxPage
	}
	return limit, (page - 1) * limit
}

func parsePricing(rateRaw, feeRaw string) (decimal.Decimal, decimal.Decimal, error) {
	rate, err := money.ParseRate(rateRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	fee, err := money.ParseFeePercent(feeRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return rate, fee, nil
}
