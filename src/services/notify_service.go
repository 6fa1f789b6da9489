package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/tradefolio/src/config"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
)

// NewNotifier picks the run-report delivery mechanism from configuration.
// Incomplete mailgun settings fall back to log-only delivery rather than
// failing runs.
func NewNotifier() Notifier {
	if config.Cfg == nil || !config.Cfg.EmailReportsEnabled {
		return &LogNotifier{}
	}
	if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.ReportRecipient == "" {
		logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or Recipient missing). Falling back to log-only run reports.")
		return &LogNotifier{}
	}
	mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
	logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
	return &MailgunNotifier{
		mg:          mg,
		senderEmail: config.Cfg.SenderEmail,
		senderName:  config.Cfg.SenderName,
		recipient:   config.Cfg.ReportRecipient,
		sendTimeout: config.Cfg.NotifySendTimeout,
	}
}

type MailgunNotifier struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
	recipient   string
	sendTimeout time.Duration
}

func (n *MailgunNotifier) SendRunReport(result *models.SyncResult, runErr error) error {
	subject := fmt.Sprintf("Tradefolio %s run %s", result.Kind, statusWord(runErr))
	sender := fmt.Sprintf("%s <%s>", n.senderName, n.senderEmail)
	message := n.mg.NewMessage(sender, subject, formatRunReport(result, runErr), n.recipient)

	ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
	defer cancel()

	_, _, err := n.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("sending run report via mailgun: %w", err)
	}
	logger.L.Info("Run report email sent", "runID", result.RunID, "recipient", n.recipient)
	return nil
}

// LogNotifier writes the run report to the structured log only.
type LogNotifier struct{}

func (n *LogNotifier) SendRunReport(result *models.SyncResult, runErr error) error {
	logger.L.Info("Run report",
		"runID", result.RunID, "kind", result.Kind, "source", result.Source,
		"parsed", result.Parsed, "usable", result.Usable,
		"created", result.Created, "updated", result.Updated, "archived", result.Archived,
		"skipped", result.Skipped, "mismatched", result.Mismatched,
		"status", statusWord(runErr))
	return nil
}

func statusWord(runErr error) string {
	if runErr != nil {
		return "failed"
	}
	return "completed"
}

func formatRunReport(result *models.SyncResult, runErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s", result.RunID, result.Kind)
	if result.Source != "" {
		fmt.Fprintf(&b, ", source %s", result.Source)
	}
	fmt.Fprintf(&b, ") %s.\n\n", statusWord(runErr))
	fmt.Fprintf(&b, "Rows parsed:   %d\n", result.Parsed)
	fmt.Fprintf(&b, "Rows usable:   %d\n", result.Usable)
	fmt.Fprintf(&b, "Created:       %d\n", result.Created)
	fmt.Fprintf(&b, "Updated:       %d\n", result.Updated)
	fmt.Fprintf(&b, "Archived:      %d\n", result.Archived)
	fmt.Fprintf(&b, "Skipped:       %d\n", result.Skipped)
	fmt.Fprintf(&b, "Mismatched:    %d\n", result.Mismatched)
	if runErr != nil {
		fmt.Fprintf(&b, "\nError: %v\n", runErr)
	}
	return b.String()
}
