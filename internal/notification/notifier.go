// Package notification は購入完了メールの送信を提供する。
package notification

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/liveeazy/backend/internal/model"
)

// Notifier は購入通知のインターフェース。
type Notifier interface {
	// NotifyPurchase は購入完了メールを送信する。
	NotifyPurchase(ctx context.Context, purchase *model.Purchase, userEmail, userName string) error
}

// SMTPNotifier はSMTP経由で購入通知メールを送信する実装。
type SMTPNotifier struct {
	host     string
	port     int
	account  string
	password string
	sender   string
	logger   *slog.Logger
}

// NewSMTPNotifier はSMTPNotifierを生成する。
func NewSMTPNotifier(host string, port int, account, password, sender string, logger *slog.Logger) *SMTPNotifier {
	if sender == "" {
		sender = account
	}
	return &SMTPNotifier{
		host:     host,
		port:     port,
		account:  account,
		password: password,
		sender:   sender,
		logger:   logger,
	}
}

// NotifyPurchase は購入完了メールを購入者宛に送信する。
func (n *SMTPNotifier) NotifyPurchase(ctx context.Context, purchase *model.Purchase, userEmail, userName string) error {
	if userEmail == "" {
		return fmt.Errorf("recipient email is empty")
	}

	subject := fmt.Sprintf("ご購入ありがとうございます: %s", purchase.ProductName)
	body := buildPurchaseBody(purchase, userName)

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", n.sender),
		fmt.Sprintf("To: %s", userEmail),
		fmt.Sprintf("Subject: %s", mimeEncodeHeader(subject)),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	auth := smtp.PlainAuth("", n.account, n.password, n.host)

	if err := smtp.SendMail(addr, auth, n.sender, []string{userEmail}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send purchase mail: %w", err)
	}

	n.logger.Info("purchase notification sent",
		slog.String("order_id", purchase.OrderID),
		slog.String("email", userEmail),
	)
	return nil
}

// buildPurchaseBody は購入通知メールの本文を生成する。
func buildPurchaseBody(purchase *model.Purchase, userName string) string {
	name := userName
	if name == "" {
		name = "お客様"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s 様\r\n\r\n", name)
	fmt.Fprintf(&b, "ご購入が完了しました。\r\n\r\n")
	fmt.Fprintf(&b, "商品名: %s\r\n", purchase.ProductName)
	fmt.Fprintf(&b, "金額: %d (%s)\r\n", purchase.Amount, purchase.Currency)
	fmt.Fprintf(&b, "注文ID: %s\r\n", purchase.OrderID)
	fmt.Fprintf(&b, "購入日時: %s\r\n", purchase.PurchaseDate.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

// mimeEncodeHeader は日本語件名をMIMEエンコードする。
func mimeEncodeHeader(s string) string {
	// ASCII以外を含む場合のみエンコードする
	for _, r := range s {
		if r > 127 {
			return fmt.Sprintf("=?UTF-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(s)))
		}
	}
	return s
}

// NoopNotifier はメール設定が無い環境向けの何もしない実装。
type NoopNotifier struct {
	logger *slog.Logger
}

// NewNoopNotifier はNoopNotifierを生成する。
func NewNoopNotifier(logger *slog.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

// NotifyPurchase はログを残すのみで送信しない。
func (n *NoopNotifier) NotifyPurchase(ctx context.Context, purchase *model.Purchase, userEmail, userName string) error {
	n.logger.Info("purchase notification skipped (mail disabled)",
		slog.String("order_id", purchase.OrderID),
	)
	return nil
}

// compile-time interface checks
var (
	_ Notifier = (*SMTPNotifier)(nil)
	_ Notifier = (*NoopNotifier)(nil)
)
