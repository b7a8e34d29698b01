package services

import (
	"context"
	"encoding/json"

	"dust2cash/internal/store"
)

func logTransactionAudit(ctx context.Context, audits AuditStore, tx store.Execer, actorID, action, transactionID string, data map[string]string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return audits.Log(ctx, tx, actorID, action, "transaction", transactionID, string(payload))
}
