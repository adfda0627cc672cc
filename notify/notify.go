/*
notify.go - Invoice delivery channels

PURPOSE:
  Implementations of ledger.Deliverer. Service.SendInvoice hands each one
  a fully computed InvoiceDocument and only marks the invoice Paid when
  Deliver returns nil.

  - LogDeliverer writes the composed message to the log. Used when no mail
    server is configured and in demos.
  - SMTPDeliverer mails the composed message to the client.

SEE ALSO:
  - ledger/delivery.go: InvoiceDocument, Deliverer
  - ledger/payments.go: SendInvoice
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/billing-ledger/export"
	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/logger"
)

// ErrNoRecipient is returned when the client has no email address.
var ErrNoRecipient = errors.New("client has no email address")

// Message is a composed invoice notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Compose renders the subject and body for doc. Figures come from
// doc.Financials; nothing is recomputed here.
func Compose(doc ledger.InvoiceDocument) Message {
	company := doc.Settings.CompanyName
	if company == "" {
		company = "Billing"
	}
	fin := doc.Financials

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", doc.Client.Name)
	b.WriteString("Please find the details of your GST invoice below.\n\n")
	fmt.Fprintf(&b, "Invoice Number: %s\n", doc.Invoice.Number)
	fmt.Fprintf(&b, "Invoice Date: %s\n", doc.Invoice.InvoiceDate)
	fmt.Fprintf(&b, "Project: %s\n", doc.Project.Name)
	fmt.Fprintf(&b, "Contract Amount: %s\n", export.FormatINR(doc.Invoice.ContractAmount))
	fmt.Fprintf(&b, "GST (%s%%): %s\n", doc.GSTPercent.String(), export.FormatINR(fin.TaxAmount))
	fmt.Fprintf(&b, "Retention: %s\n", export.FormatINR(fin.RetentionAmount))
	fmt.Fprintf(&b, "Certified Amount: %s\n", export.FormatINR(fin.CertifiedAmount))
	fmt.Fprintf(&b, "Paid Amount: %s\n", export.FormatINR(fin.TotalReceived))
	fmt.Fprintf(&b, "Balance Due: %s\n", export.FormatINR(fin.BalanceDue))
	if !doc.Invoice.DueDate.IsZero() {
		fmt.Fprintf(&b, "Due Date: %s\n", doc.Invoice.DueDate)
	}
	b.WriteString("\n")
	if doc.Settings.InvoiceFooter != "" {
		b.WriteString(doc.Settings.InvoiceFooter + "\n\n")
	}
	fmt.Fprintf(&b, "Regards,\n%s\n", company)

	return Message{
		To:      doc.Client.Email,
		Subject: fmt.Sprintf("%s - GST Invoice %s", company, doc.Invoice.Number),
		Body:    b.String(),
	}
}

// =============================================================================
// LOG
// =============================================================================

// LogDeliverer "delivers" by logging the composed message.
type LogDeliverer struct {
	log *zap.Logger
}

func NewLogDeliverer(log *zap.Logger) *LogDeliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDeliverer{log: log}
}

func (d *LogDeliverer) Channel() string { return "log" }

func (d *LogDeliverer) Deliver(ctx context.Context, doc ledger.InvoiceDocument) error {
	msg := Compose(doc)
	logger.Ctx(ctx, d.log).Info("invoice delivered",
		zap.String("invoice_number", doc.Invoice.Number),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("balance_due", doc.Financials.BalanceDue.String()),
	)
	return nil
}

// =============================================================================
// SMTP
// =============================================================================

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Addr     string // host:port
	Host     string
	Username string
	Password string
	From     string
}

// SMTPDeliverer mails invoices to the client's address.
type SMTPDeliverer struct {
	cfg  SMTPConfig
	send SendFunc
	log  *zap.Logger
}

type SMTPOption func(*SMTPDeliverer)

// WithSendFunc replaces smtp.SendMail.
func WithSendFunc(f SendFunc) SMTPOption { return func(d *SMTPDeliverer) { d.send = f } }

func NewSMTPDeliverer(cfg SMTPConfig, log *zap.Logger, opts ...SMTPOption) *SMTPDeliverer {
	if log == nil {
		log = zap.NewNop()
	}
	d := &SMTPDeliverer{cfg: cfg, send: smtp.SendMail, log: log}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *SMTPDeliverer) Channel() string { return "email" }

func (d *SMTPDeliverer) Deliver(ctx context.Context, doc ledger.InvoiceDocument) error {
	msg := Compose(doc)
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if d.cfg.Username != "" {
		auth = smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)
	}
	if err := d.send(d.cfg.Addr, auth, d.cfg.From, []string{msg.To}, d.render(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	logger.Ctx(ctx, d.log).Info("invoice emailed",
		zap.String("invoice_number", doc.Invoice.Number),
		zap.String("to", msg.To),
	)
	return nil
}

// render builds an RFC 5322 message with a UTF-8 plain text body.
func (d *SMTPDeliverer) render(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", d.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

var (
	_ ledger.Deliverer = (*LogDeliverer)(nil)
	_ ledger.Deliverer = (*SMTPDeliverer)(nil)
)
