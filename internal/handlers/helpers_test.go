package handlers

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"dust2cash/internal/auth"
	"dust2cash/internal/config"
	"dust2cash/internal/db"
	"dust2cash/internal/models"
	"dust2cash/internal/services"
	"dust2cash/internal/store"
	"dust2cash/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Execer, user models.User) error
	getByEmailFn func(ctx context.Context, email string) (models.User, error)
	getByIDFn    func(ctx context.Context, userID string) (models.User, error)
	hasRoleFn    func(ctx context.Context, tx store.Getter, role models.Role) (bool, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, user models.User) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, user)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, store.ErrNotFound
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{ID: userID, Email: userID + "@example.com"}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) HasRole(ctx context.Context, tx store.Getter, role models.Role) (bool, error) {
	if s.hasRoleFn == nil {
		return true, nil
	}
	return s.hasRoleFn(ctx, tx, role)
}

type stubClientStore struct {
	getOrCreateFn func(ctx context.Context, id, userID, email string) (models.ClientProfile, error)
	updateFn      func(ctx context.Context, profile models.ClientProfile) error
}

func (s stubClientStore) GetOrCreate(ctx context.Context, id, userID, email string) (models.ClientProfile, error) {
	if s.getOrCreateFn == nil {
		return models.ClientProfile{ID: id, UserID: userID, Email: email}, nil
	}
	return s.getOrCreateFn(ctx, id, userID, email)
}

func (s stubClientStore) Update(ctx context.Context, profile models.ClientProfile) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, profile)
}

type stubAgentStore struct {
	createFn func(ctx context.Context, tx store.Execer, id, userID string) error
}

func (s stubAgentStore) Create(ctx context.Context, tx store.Execer, id, userID string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, userID)
}

type stubPricingStore struct {
	getFn    func(ctx context.Context) (models.PricingSettings, error)
	updateFn func(ctx context.Context, tx store.Execer, rate, feePercent decimal.Decimal, actorID string, at time.Time) error
}

func (s stubPricingStore) Get(ctx context.Context) (models.PricingSettings, error) {
	if s.getFn == nil {
		return models.PricingSettings{ExchangeRate: decimal.NewFromInt(100)}, nil
	}
	return s.getFn(ctx)
}

func (s stubPricingStore) Update(ctx context.Context, tx store.Execer, rate, feePercent decimal.Decimal, actorID string, at time.Time) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, tx, rate, feePercent, actorID, at)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, entityID string, limit, offset int) ([]models.AuditLog, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, entityID string, limit, offset int) ([]models.AuditLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, entityID, limit, offset)
}

// transitionFn stands in for every single-transaction service call. method
// names the service method that was invoked.
type transitionFn func(ctx context.Context, method, userID, transactionID string) (models.Transaction, error)

type stubService struct {
	createFn     func(ctx context.Context, req services.CreateTransactionRequest) (models.Transaction, error)
	transitionFn transitionFn
	listFn       func(ctx context.Context, method, userID string, status models.Status, limit, offset int) ([]models.Transaction, error)
	addressFn    func(ctx context.Context, agentUserID, transactionID, address string) (models.Transaction, error)
}

func (s stubService) Create(ctx context.Context, req services.CreateTransactionRequest) (models.Transaction, error) {
	if s.createFn == nil {
		return models.Transaction{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubService) call(ctx context.Context, method, userID, transactionID string) (models.Transaction, error) {
	if s.transitionFn == nil {
		return models.Transaction{ID: transactionID}, nil
	}
	return s.transitionFn(ctx, method, userID, transactionID)
}

func (s stubService) list(ctx context.Context, method, userID string, status models.Status, limit, offset int) ([]models.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, method, userID, status, limit, offset)
}

func (s stubService) ProvideAddress(ctx context.Context, agentUserID, transactionID, address string) (models.Transaction, error) {
	if s.addressFn == nil {
		return models.Transaction{ID: transactionID, TransferAddress: &address}, nil
	}
	return s.addressFn(ctx, agentUserID, transactionID, address)
}

func (s stubService) ConfirmReceipt(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error) {
	return s.call(ctx, "ConfirmReceipt", agentUserID, transactionID)
}

func (s stubService) MarkPaymentSent(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error) {
	return s.call(ctx, "MarkPaymentSent", agentUserID, transactionID)
}

func (s stubService) Complete(ctx context.Context, adminUserID, transactionID string) (models.Transaction, error) {
	return s.call(ctx, "Complete", adminUserID, transactionID)
}

func (s stubService) Cancel(ctx context.Context, adminUserID, transactionID string) (models.Transaction, error) {
	return s.call(ctx, "Cancel", adminUserID, transactionID)
}

func (s stubService) CancelByClient(ctx context.Context, clientUserID, transactionID string) (models.Transaction, error) {
	return s.call(ctx, "CancelByClient", clientUserID, transactionID)
}

func (s stubService) ForClient(ctx context.Context, clientUserID, transactionID string) (models.Transaction, error) {
	return s.call(ctx, "ForClient", clientUserID, transactionID)
}

func (s stubService) Get(ctx context.Context, transactionID string) (models.Transaction, error) {
	return s.call(ctx, "Get", "", transactionID)
}

func (s stubService) ListForClient(ctx context.Context, clientUserID string, limit, offset int) ([]models.Transaction, error) {
	return s.list(ctx, "ListForClient", clientUserID, "", limit, offset)
}

func (s stubService) ActiveForAgent(ctx context.Context, agentUserID string) ([]models.Transaction, error) {
	return s.list(ctx, "ActiveForAgent", agentUserID, "", 0, 0)
}

func (s stubService) CompletedForAgent(ctx context.Context, agentUserID string) ([]models.Transaction, error) {
	return s.list(ctx, "CompletedForAgent", agentUserID, "", 0, 0)
}

func (s stubService) ListAll(ctx context.Context, status models.Status, limit, offset int) ([]models.Transaction, error) {
	return s.list(ctx, "ListAll", "", status, limit, offset)
}

type stubMatcher struct {
	openFn         func(ctx context.Context, clientUserID, transactionID string) (models.AgentRequest, error)
	acceptFn       func(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error)
	openRequestsFn func(ctx context.Context) ([]models.OpenRequest, error)
}

func (s stubMatcher) OpenOrRenew(ctx context.Context, clientUserID, transactionID string) (models.AgentRequest, error) {
	if s.openFn == nil {
		return models.AgentRequest{TransactionID: transactionID}, nil
	}
	return s.openFn(ctx, clientUserID, transactionID)
}

func (s stubMatcher) Accept(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error) {
	if s.acceptFn == nil {
		return models.Transaction{ID: transactionID}, nil
	}
	return s.acceptFn(ctx, agentUserID, transactionID)
}

func (s stubMatcher) OpenRequests(ctx context.Context) ([]models.OpenRequest, error) {
	if s.openRequestsFn == nil {
		return nil, nil
	}
	return s.openRequestsFn(ctx)
}

type stubDirectory struct {
	agentFn   func(ctx context.Context, userID string) (models.AgentProfile, error)
	onlineFn  func(ctx context.Context, userID string) (models.AgentProfile, error)
	offlineFn func(ctx context.Context, userID string) (models.AgentProfile, error)
	listFn    func(ctx context.Context) ([]models.AgentProfile, error)
}

func (s stubDirectory) Agent(ctx context.Context, userID string) (models.AgentProfile, error) {
	if s.agentFn == nil {
		return models.AgentProfile{ID: "agent-" + userID, UserID: userID}, nil
	}
	return s.agentFn(ctx, userID)
}

func (s stubDirectory) GoOnline(ctx context.Context, userID string) (models.AgentProfile, error) {
	if s.onlineFn == nil {
		return models.AgentProfile{UserID: userID, IsOnline: true}, nil
	}
	return s.onlineFn(ctx, userID)
}

func (s stubDirectory) GoOffline(ctx context.Context, userID string) (models.AgentProfile, error) {
	if s.offlineFn == nil {
		return models.AgentProfile{UserID: userID}, nil
	}
	return s.offlineFn(ctx, userID)
}

func (s stubDirectory) ListAll(ctx context.Context) ([]models.AgentProfile, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

// testDeps lists the collaborators a test cares about; zero fields fall back
// to permissive stubs.
type testDeps struct {
	txRunner     db.TxRunner
	users        UserStore
	clients      ClientStore
	agents       AgentStore
	pricing      PricingStore
	audit        AuditStore
	transactions TransactionService
	matcher      Matcher
	directory    Directory
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	if deps.txRunner == nil {
		deps.txRunner = fakeTxRunner{}
	}
	if deps.users == nil {
		deps.users = stubUserStore{}
	}
	if deps.clients == nil {
		deps.clients = stubClientStore{}
	}
	if deps.agents == nil {
		deps.agents = stubAgentStore{}
	}
	if deps.pricing == nil {
		deps.pricing = stubPricingStore{}
	}
	if deps.audit == nil {
		deps.audit = stubAuditStore{}
	}
	if deps.transactions == nil {
		deps.transactions = stubService{}
	}
	if deps.matcher == nil {
		deps.matcher = stubMatcher{}
	}
	if deps.directory == nil {
		deps.directory = stubDirectory{}
	}
	return New(deps.txRunner, cfg, deps.users, deps.clients, deps.agents, deps.pricing, deps.audit, deps.transactions, deps.matcher, deps.directory, websocket.NewHub())
}

// serveWithAuth routes a request through the full router as userID holding role.
func serveWithAuth(t *testing.T, handler *Handler, method, target, body, userID string, role models.Role) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, role, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func stringPtr(value string) *string {
	return &value
}

func decimalFrom(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", raw, err)
	}
	return value
}
