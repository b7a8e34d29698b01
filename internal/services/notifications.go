package services

import (
	"context"
	"fmt"
	"strings"

	"dust2cash/internal/models"
	"dust2cash/internal/money"
	"dust2cash/internal/notify"

	"go.uber.org/zap"
)

// Event types pushed over the websocket hub.
const (
	EventRequestOpened   = "request.opened"
	EventAgentAvailable  = "agent.available"
	EventRequestAccepted = "request.accepted"
	EventAddressProvided = "transaction.address_provided"
	EventCryptoReceived  = "transaction.crypto_received"
	EventPaymentSent     = "transaction.payment_sent"
	EventCompleted       = "transaction.completed"
	EventCancelled       = "transaction.cancelled"
	EventRequestExpired  = "request.expired"
)

func agentRequestMessages(t models.Transaction, agents []models.AgentProfile) []notify.Message {
	msgs := make([]notify.Message, 0, len(agents))
	for _, agent := range agents {
		msgs = append(msgs, notify.Message{
			UserID:  agent.UserID,
			To:      agent.Email,
			Name:    agent.Username,
			Subject: "New conversion request",
			Body: fmt.Sprintf("A client wants to convert %s %s on %s, paying out %s via %s. Open your dashboard to accept it.",
				money.Format(t.Amount), t.Currency, t.Platform, money.Format(t.AmountToReceive), t.PaymentMethod),
			Event:         EventRequestOpened,
			TransactionID: t.ID,
			Status:        string(models.StatusAgentRequested),
		})
	}
	return msgs
}

func agentAvailableMessages(clients []models.Contact) []notify.Message {
	msgs := make([]notify.Message, 0, len(clients))
	for _, client := range clients {
		msgs = append(msgs, notify.Message{
			UserID:  client.UserID,
			To:      client.Email,
			Name:    client.Name,
			Subject: "An agent is now online",
			Body:    "An agent just came online and can pick up your pending request.",
			Event:   EventAgentAvailable,
		})
	}
	return msgs
}

// expiryAlert tells the operator which transactions lapsed without an agent.
func expiryAlert(to string, transactionIDs []string) notify.Message {
	return notify.Message{
		To:      to,
		Name:    "Dust2Cash admin",
		Subject: fmt.Sprintf("%d agent request(s) expired", len(transactionIDs)),
		Body: fmt.Sprintf("No agent accepted these requests before they expired, so the transactions were cancelled: %s",
			strings.Join(transactionIDs, ", ")),
	}
}

// clientMessage builds the client-facing message for a status change.
func clientMessage(contact models.Contact, t models.Transaction, event string) notify.Message {
	msg := notify.Message{
		UserID:        contact.UserID,
		To:            contact.Email,
		Name:          contact.Name,
		Event:         event,
		TransactionID: t.ID,
		Status:        string(t.Status),
	}
	switch event {
	case EventRequestAccepted:
		msg.Subject = "An agent accepted your request"
		msg.Body = "An agent has been matched to your transaction and will send you a transfer address shortly."
	case EventAddressProvided:
		address := ""
		if t.TransferAddress != nil {
			address = *t.TransferAddress
		}
		msg.Subject = "Transfer address ready"
		msg.Body = fmt.Sprintf("Send %s %s on %s to: %s", money.Format(t.Amount), t.Currency, t.Platform, address)
	case EventCryptoReceived:
		msg.Subject = "Crypto received"
		msg.Body = "Your agent confirmed receipt of the crypto. Your payout is being prepared."
	case EventPaymentSent:
		msg.Subject = "Payment confirmation"
		msg.Body = fmt.Sprintf("%s has been sent to %s via %s.", money.Format(t.AmountToReceive), t.PaymentPhone, t.PaymentMethod)
	case EventCompleted:
		msg.Subject = "Transaction completed"
		msg.Body = "Your transaction is complete. Thank you for using Dust2Cash."
	case EventRequestExpired:
		msg.Subject = "Request expired"
		msg.Body = "No agent accepted your request in time, so the transaction was cancelled."
	default:
		msg.Subject = "Transaction cancelled"
		msg.Body = "Your transaction has been cancelled."
	}
	return msg
}

// notifyClient resolves the owning client's contact and enqueues one message.
// Lookup failures are logged; the state change already committed.
func notifyClient(ctx context.Context, clients ClientStore, notifier Notifier, t models.Transaction, event string) {
	contact, err := clients.Contact(ctx, t.ClientID)
	if err != nil {
		zap.L().Warn("client contact lookup failed",
			zap.String("transaction_id", t.ID),
			zap.String("event", event),
			zap.Error(err))
		return
	}
	notifier.Enqueue(clientMessage(contact, t, event))
}
