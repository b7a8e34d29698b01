package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"dust2cash/internal/models"
	"dust2cash/internal/notify"
	"dust2cash/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// fakeTxRunner runs fn without a real transaction. When mem is set, a
// failing fn restores the memory snapshot taken before it ran.
type fakeTxRunner struct {
	err error
	mem *memory
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	if f.mem == nil {
		return fn(nil)
	}
	saved := f.mem.snapshot()
	if err := fn(nil); err != nil {
		f.mem.restore(saved)
		return err
	}
	return nil
}

// memory is an in-memory database whose conditional writes are atomic under
// one mutex, mirroring single-row UPDATE ... WHERE semantics.
type memory struct {
	mu           sync.Mutex
	users        map[string]models.User
	transactions map[string]models.Transaction
	requests     map[string]models.AgentRequest
	agents       map[string]models.AgentProfile
	clients      map[string]models.ClientProfile
	pricing      models.PricingSettings
	audits       []models.AuditLog
}

func newMemory() *memory {
	return &memory{
		users:        map[string]models.User{},
		transactions: map[string]models.Transaction{},
		requests:     map[string]models.AgentRequest{},
		agents:       map[string]models.AgentProfile{},
		clients:      map[string]models.ClientProfile{},
		pricing: models.PricingSettings{
			ExchangeRate:          decimal.RequireFromString("100.00"),
			TransactionFeePercent: decimal.RequireFromString("1.5"),
		},
	}
}

type memorySnapshot struct {
	transactions map[string]models.Transaction
	requests     map[string]models.AgentRequest
	agents       map[string]models.AgentProfile
	audits       []models.AuditLog
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *memory) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memorySnapshot{
		transactions: copyMap(m.transactions),
		requests:     copyMap(m.requests),
		agents:       copyMap(m.agents),
		audits:       append([]models.AuditLog(nil), m.audits...),
	}
}

func (m *memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = s.transactions
	m.requests = s.requests
	m.agents = s.agents
	m.audits = s.audits
}

func (m *memory) setStatus(id string, status models.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.transactions[id]
	t.Status = status
	m.transactions[id] = t
}

func (m *memory) addClient(id, userID string, complete bool) models.ClientProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile := models.ClientProfile{ID: id, UserID: userID, Email: userID + "@example.com"}
	if complete {
		profile.FirstName = "Wanjiru"
		profile.LastName = "Kamau"
		profile.PhoneNumber = "+254712345678"
	}
	m.clients[id] = profile
	return profile
}

func (m *memory) addAgent(id, userID string, online bool) models.AgentProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent := models.AgentProfile{ID: id, UserID: userID, Username: userID, Email: userID + "@example.com", IsOnline: online}
	m.agents[id] = agent
	return agent
}

func (m *memory) transaction(id string) models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions[id]
}

func (m *memory) request(id string) (models.AgentRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	return req, ok
}

func (m *memory) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.audits))
	for _, entry := range m.audits {
		actions = append(actions, entry.Action)
	}
	return actions
}

type memTransactions struct{ m *memory }

func (s memTransactions) Create(ctx context.Context, tx store.Execer, t models.Transaction) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.transactions[t.ID]; ok {
		return errors.New("duplicate transaction")
	}
	s.m.transactions[t.ID] = t
	return nil
}

func (s memTransactions) GetByID(ctx context.Context, transactionID string) (models.Transaction, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.transactions[transactionID]
	if !ok {
		return models.Transaction{}, store.ErrNotFound
	}
	return t, nil
}

func (s memTransactions) GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error) {
	return s.GetByID(ctx, transactionID)
}

func (s memTransactions) Transition(ctx context.Context, tx store.Execer, in store.TransitionInput) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.transactions[in.ID]
	if !ok || !contains(in.From, t.Status) {
		return 0, nil
	}
	if in.AgentID != nil {
		if in.AssignAgent {
			if t.AgentID != nil {
				return 0, nil
			}
			agentID := *in.AgentID
			t.AgentID = &agentID
		} else if !t.AssignedTo(*in.AgentID) {
			return 0, nil
		}
	}
	t.Status = in.To
	t.UpdatedAt = in.At
	if in.TransferAddress != nil {
		address := *in.TransferAddress
		t.TransferAddress = &address
	}
	if in.RequestTimeout != nil {
		timeout := *in.RequestTimeout
		t.RequestTimeout = &timeout
	}
	s.m.transactions[in.ID] = t
	return 1, nil
}

func (s memTransactions) CancelMatching(ctx context.Context, tx store.Selecter, ids []string, at time.Time) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cancelled := []string{}
	for _, id := range ids {
		t, ok := s.m.transactions[id]
		if !ok || !t.Status.Matching() {
			continue
		}
		t.Status = models.StatusCancelled
		t.UpdatedAt = at
		s.m.transactions[id] = t
		cancelled = append(cancelled, id)
	}
	return cancelled, nil
}

func (s memTransactions) filter(keep func(models.Transaction) bool) []models.Transaction {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rows := []models.Transaction{}
	for _, t := range s.m.transactions {
		if keep(t) {
			rows = append(rows, t)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows
}

func (s memTransactions) ListByClient(ctx context.Context, clientID string, limit, offset int) ([]models.Transaction, error) {
	return s.filter(func(t models.Transaction) bool { return t.ClientID == clientID }), nil
}

func (s memTransactions) ListByAgent(ctx context.Context, agentID string, statuses []models.Status) ([]models.Transaction, error) {
	return s.filter(func(t models.Transaction) bool { return t.AssignedTo(agentID) && contains(statuses, t.Status) }), nil
}

func (s memTransactions) ListAll(ctx context.Context, status models.Status, limit, offset int) ([]models.Transaction, error) {
	return s.filter(func(t models.Transaction) bool { return status == "" || t.Status == status }), nil
}

type memRequests struct{ m *memory }

func (s memRequests) Get(ctx context.Context, q store.Getter, transactionID string) (models.AgentRequest, error) {
	return s.GetByTransaction(ctx, transactionID)
}

func (s memRequests) GetByTransaction(ctx context.Context, transactionID string) (models.AgentRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	req, ok := s.m.requests[transactionID]
	if !ok {
		return models.AgentRequest{}, store.ErrNotFound
	}
	return req, nil
}

func (s memRequests) Create(ctx context.Context, tx store.Execer, transactionID string, requestedAt, expiresAt time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.requests[transactionID]; ok {
		return errors.New("duplicate agent request")
	}
	s.m.requests[transactionID] = models.AgentRequest{TransactionID: transactionID, RequestedAt: requestedAt, ExpiresAt: expiresAt}
	return nil
}

func (s memRequests) update(transactionID string, when func(models.AgentRequest) bool, apply func(*models.AgentRequest)) int64 {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	req, ok := s.m.requests[transactionID]
	if !ok || !when(req) {
		return 0
	}
	apply(&req)
	s.m.requests[transactionID] = req
	return 1
}

func (s memRequests) Reopen(ctx context.Context, tx store.Execer, transactionID string, requestedAt, expiresAt time.Time) (int64, error) {
	return s.update(transactionID, func(r models.AgentRequest) bool {
		return !r.IsAccepted && (r.IsExpired || !requestedAt.Before(r.ExpiresAt))
	}, func(r *models.AgentRequest) {
		r.RequestedAt, r.ExpiresAt, r.IsAccepted, r.IsExpired = requestedAt, expiresAt, false, false
	}), nil
}

func (s memRequests) Accept(ctx context.Context, tx store.Execer, transactionID string, now time.Time) (int64, error) {
	return s.update(transactionID, func(r models.AgentRequest) bool {
		return !r.IsAccepted && !r.IsExpired && r.ExpiresAt.After(now)
	}, func(r *models.AgentRequest) { r.IsAccepted = true }), nil
}

func (s memRequests) Expire(ctx context.Context, tx store.Execer, transactionID string, now time.Time) (int64, error) {
	return s.update(transactionID, func(r models.AgentRequest) bool {
		return !r.IsAccepted && !r.IsExpired && !r.ExpiresAt.After(now)
	}, func(r *models.AgentRequest) { r.IsExpired = true }), nil
}

func (s memRequests) Close(ctx context.Context, tx store.Execer, transactionID string) (int64, error) {
	return s.update(transactionID, func(r models.AgentRequest) bool {
		return !r.IsAccepted && !r.IsExpired
	}, func(r *models.AgentRequest) { r.IsExpired = true }), nil
}

func (s memRequests) ExpireStale(ctx context.Context, tx store.Selecter, now time.Time) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	ids := []string{}
	for id, req := range s.m.requests {
		if !req.IsExpired && !req.IsAccepted && req.ExpiresAt.Before(now) {
			req.IsExpired = true
			s.m.requests[id] = req
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s memRequests) ListOpen(ctx context.Context, now time.Time) ([]models.OpenRequest, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rows := []models.OpenRequest{}
	for id, req := range s.m.requests {
		t := s.m.transactions[id]
		if req.Active(now) && t.Status == models.StatusAgentRequested {
			rows = append(rows, models.OpenRequest{TransactionID: id, Amount: t.Amount, RequestedAt: req.RequestedAt, ExpiresAt: req.ExpiresAt})
		}
	}
	return rows, nil
}

func (s memRequests) ClientsWaiting(ctx context.Context, now time.Time) ([]models.Contact, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	contacts := []models.Contact{}
	for id, req := range s.m.requests {
		if !req.Active(now) {
			continue
		}
		client := s.m.clients[s.m.transactions[id].ClientID]
		contacts = append(contacts, models.Contact{UserID: client.UserID, Email: client.Email})
	}
	return contacts, nil
}

type memAgents struct{ m *memory }

func (s memAgents) Create(ctx context.Context, tx store.Execer, id, userID string) error {
	s.m.addAgent(id, userID, false)
	return nil
}

func (s memAgents) find(match func(models.AgentProfile) bool) (models.AgentProfile, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, agent := range s.m.agents {
		if match(agent) {
			return agent, nil
		}
	}
	return models.AgentProfile{}, store.ErrNotFound
}

func (s memAgents) GetByUserID(ctx context.Context, userID string) (models.AgentProfile, error) {
	return s.find(func(a models.AgentProfile) bool { return a.UserID == userID })
}

func (s memAgents) GetByID(ctx context.Context, agentID string) (models.AgentProfile, error) {
	return s.find(func(a models.AgentProfile) bool { return a.ID == agentID })
}

func (s memAgents) IsOnline(ctx context.Context, tx store.Getter, agentID string) (bool, error) {
	agent, err := s.GetByID(ctx, agentID)
	return agent.IsOnline, err
}

func (s memAgents) setOnline(agentID string, online bool, at *time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	agent, ok := s.m.agents[agentID]
	if !ok {
		return store.ErrNotFound
	}
	agent.IsOnline = online
	if at != nil {
		agent.LastOnline = at
	}
	s.m.agents[agentID] = agent
	return nil
}

func (s memAgents) SetOnline(ctx context.Context, agentID string, at time.Time) error {
	return s.setOnline(agentID, true, &at)
}

func (s memAgents) SetOffline(ctx context.Context, agentID string) error {
	return s.setOnline(agentID, false, nil)
}

func (s memAgents) list(onlineOnly bool) []models.AgentProfile {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	agents := []models.AgentProfile{}
	for _, agent := range s.m.agents {
		if !onlineOnly || agent.IsOnline {
			agents = append(agents, agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

func (s memAgents) ListOnline(ctx context.Context) ([]models.AgentProfile, error) {
	return s.list(true), nil
}

func (s memAgents) ListAll(ctx context.Context) ([]models.AgentProfile, error) {
	return s.list(false), nil
}

type memClients struct {
	m          *memory
	contactErr error
}

func (s memClients) GetOrCreate(ctx context.Context, id, userID, email string) (models.ClientProfile, error) {
	if profile, err := s.GetByUserID(ctx, userID); err == nil {
		return profile, nil
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	profile := models.ClientProfile{ID: id, UserID: userID, Email: email}
	s.m.clients[id] = profile
	return profile, nil
}

func (s memClients) GetByUserID(ctx context.Context, userID string) (models.ClientProfile, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, profile := range s.m.clients {
		if profile.UserID == userID {
			return profile, nil
		}
	}
	return models.ClientProfile{}, store.ErrNotFound
}

func (s memClients) Update(ctx context.Context, profile models.ClientProfile) error {
	existing, err := s.GetByUserID(ctx, profile.UserID)
	if err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	profile.ID = existing.ID
	s.m.clients[existing.ID] = profile
	return nil
}

func (s memClients) Contact(ctx context.Context, clientID string) (models.Contact, error) {
	if s.contactErr != nil {
		return models.Contact{}, s.contactErr
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	profile, ok := s.m.clients[clientID]
	if !ok {
		return models.Contact{}, store.ErrNotFound
	}
	return models.Contact{UserID: profile.UserID, Name: profile.FirstName + " " + profile.LastName, Email: profile.Email}, nil
}

type memPricing struct{ m *memory }

func (s memPricing) Get(ctx context.Context) (models.PricingSettings, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.pricing, nil
}

func (s memPricing) Update(ctx context.Context, tx store.Execer, rate, feePercent decimal.Decimal, actorID string, at time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.pricing = models.PricingSettings{ExchangeRate: rate, TransactionFeePercent: feePercent, UpdatedBy: &actorID, UpdatedAt: at}
	return nil
}

type memAudits struct{ m *memory }

func (s memAudits) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.audits = append(s.m.audits, models.AuditLog{Action: action, EntityType: entityType, EntityID: entityID, Data: data})
	return nil
}

func (s memAudits) List(ctx context.Context, entityID string, limit, offset int) ([]models.AuditLog, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return append([]models.AuditLog(nil), s.m.audits...), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Enqueue(msgs ...notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msgs...)
}

func (n *recordingNotifier) events(event string) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []notify.Message{}
	for _, msg := range n.msgs {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

// clock is a settable time source shared by every service in a fixture.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	mem       *memory
	clock     *clock
	notifier  *recordingNotifier
	matcher   *Matcher
	directory *Directory
	service   *TransactionService
}

func newFixture() *fixture {
	return buildFixture(false)
}

// newRollbackFixture undoes failed transactions. Concurrent tests use
// newFixture since a snapshot restore would clobber parallel commits.
func newRollbackFixture() *fixture {
	return buildFixture(true)
}

func buildFixture(rollback bool) *fixture {
	mem := newMemory()
	clk := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	runner := fakeTxRunner{}
	if rollback {
		runner.mem = mem
	}
	clients := memClients{m: mem}

	matcher := NewMatcher(runner, memTransactions{mem}, memRequests{mem}, memAgents{mem}, clients, memAudits{mem}, notifier, 0)
	matcher.now = clk.Now
	directory := NewDirectory(memAgents{mem}, memRequests{mem}, notifier)
	directory.now = clk.Now
	service := NewTransactionService(runner, memTransactions{mem}, memRequests{mem}, clients, memAgents{mem}, memPricing{mem}, memAudits{mem}, notifier)
	service.now = clk.Now

	mem.addClient("client-1", "client-user", true)
	return &fixture{mem: mem, clock: clk, notifier: notifier, matcher: matcher, directory: directory, service: service}
}

func (f *fixture) createPending(t testing.TB) models.Transaction {
	t.Helper()
	tx, err := f.service.Create(context.Background(), CreateTransactionRequest{
		ClientUserID:  "client-user",
		Platform:      models.PlatformBinance,
		Currency:      models.CurrencyUSDT,
		Amount:        "100",
		PaymentMethod: models.PaymentMpesa,
		PaymentPhone:  "+254712345678",
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func (f *fixture) assertFlagsExclusive(t testing.TB) {
	t.Helper()
	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()
	for id, req := range f.mem.requests {
		if req.IsAccepted && req.IsExpired {
			t.Fatalf("request %s is both accepted and expired", id)
		}
	}
}
