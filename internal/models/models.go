package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

type Status string

const (
	StatusPending         Status = "pending"
	StatusAgentRequested  Status = "agent_requested"
	StatusAgentOnline     Status = "agent_online"
	StatusAddressProvided Status = "address_provided"
	StatusCryptoReceived  Status = "crypto_received"
	StatusPaymentSent     Status = "payment_sent"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Matching reports whether the transaction is still waiting for an agent.
func (s Status) Matching() bool {
	return s == StatusPending || s == StatusAgentRequested
}

type Platform string

const (
	PlatformBinance Platform = "binance"
	PlatformBybit   Platform = "bybit"
	PlatformBitget  Platform = "bitget"
)

func (p Platform) Valid() bool {
	return p == PlatformBinance || p == PlatformBybit || p == PlatformBitget
}

type Currency string

const (
	CurrencyUSDT      Currency = "usdt"
	CurrencyWorldcoin Currency = "worldcoin"
)

func (c Currency) Valid() bool {
	return c == CurrencyUSDT || c == CurrencyWorldcoin
}

type PaymentMethod string

const (
	PaymentMpesa  PaymentMethod = "mpesa"
	PaymentAirtel PaymentMethod = "airtel"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMpesa || m == PaymentAirtel
}

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type ClientProfile struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Email       string    `db:"email" json:"email"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (p ClientProfile) IsComplete() bool {
	return p.FirstName != "" && p.LastName != "" && p.PhoneNumber != "" && p.Email != ""
}

type AgentProfile struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Username   string     `db:"username" json:"username"`
	Email      string     `db:"email" json:"email"`
	IsOnline   bool       `db:"is_online" json:"is_online"`
	LastOnline *time.Time `db:"last_online" json:"last_online,omitempty"`
}

type Transaction struct {
	ID              string          `db:"id" json:"id"`
	ClientID        string          `db:"client_id" json:"client_id"`
	AgentID         *string         `db:"agent_id" json:"agent_id,omitempty"`
	Platform        Platform        `db:"platform" json:"platform"`
	Currency        Currency        `db:"currency" json:"currency"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	ExchangeRate    decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	FeePercent      decimal.Decimal `db:"fee_percent" json:"fee_percent"`
	TransactionFee  decimal.Decimal `db:"transaction_fee" json:"transaction_fee"`
	AmountToReceive decimal.Decimal `db:"amount_to_receive" json:"amount_to_receive"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"payment_method"`
	PaymentPhone    string          `db:"payment_phone" json:"payment_phone"`
	TransferAddress *string         `db:"transfer_address" json:"transfer_address,omitempty"`
	Status          Status          `db:"status" json:"status"`
	RequestTimeout  *time.Time      `db:"request_timeout" json:"request_timeout,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// AssignedTo reports whether agentID is the agent currently holding the transaction.
func (t Transaction) AssignedTo(agentID string) bool {
	return t.AgentID != nil && *t.AgentID == agentID
}

type AgentRequest struct {
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	RequestedAt   time.Time `db:"requested_at" json:"requested_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	IsAccepted    bool      `db:"is_accepted" json:"is_accepted"`
	IsExpired     bool      `db:"is_expired" json:"is_expired"`
}

// Active reports whether the request can still be accepted at now.
func (r AgentRequest) Active(now time.Time) bool {
	return !r.IsAccepted && !r.IsExpired && now.Before(r.ExpiresAt)
}

// Lapsed reports whether the TTL ran out without anyone accepting.
func (r AgentRequest) Lapsed(now time.Time) bool {
	return !r.IsAccepted && !now.Before(r.ExpiresAt)
}

// OpenRequest is the agent-facing projection of a broadcast request.
type OpenRequest struct {
	TransactionID   string          `db:"transaction_id" json:"transaction_id"`
	ClientName      string          `db:"client_name" json:"client_name"`
	Platform        Platform        `db:"platform" json:"platform"`
	Currency        Currency        `db:"currency" json:"currency"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	AmountToReceive decimal.Decimal `db:"amount_to_receive" json:"amount_to_receive"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"payment_method"`
	RequestedAt     time.Time       `db:"requested_at" json:"requested_at"`
	ExpiresAt       time.Time       `db:"expires_at" json:"expires_at"`
}

type PricingSettings struct {
	ExchangeRate          decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	TransactionFeePercent decimal.Decimal `db:"transaction_fee_percent" json:"transaction_fee_percent"`
	UpdatedBy             *string         `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	ActorUserID *string   `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Data        string    `db:"data" json:"data"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Contact is a notification recipient resolved from a profile.
type Contact struct {
	UserID string `db:"user_id"`
	Name   string `db:"name"`
	Email  string `db:"email"`
}
