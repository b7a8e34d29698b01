package notify

import (
	"dust2cash/internal/config"
)

// ChainFromConfig ranks the configured backends: Brevo first, SMTP second,
// the log backend always last.
func ChainFromConfig(cfg config.NotifyConfig) *Chain {
	var backends []Backend
	if cfg.BrevoAPIKey != "" && cfg.BrevoSenderEmail != "" {
		backends = append(backends, NewBrevoBackend(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName))
	}
	if cfg.SMTPHost != "" {
		backends = append(backends, NewSMTPBackend(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.DefaultFrom))
	}
	backends = append(backends, LogBackend{})
	return NewChain(backends...)
}
