// Package notify はアクセス申請を管理者へ知らせる通知手段を提供する。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AccessRequestEvent は新規アクセス申請の通知内容。
type AccessRequestEvent struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier は管理者への通知インターフェース。
type Notifier interface {
	NotifyAccessRequest(ctx context.Context, ev AccessRequestEvent) error
}

// Noop は何もしないNotifier。Webhookが未設定の場合に使用する。
type Noop struct{}

// NotifyAccessRequest は何もせずnilを返す。
func (Noop) NotifyAccessRequest(context.Context, AccessRequestEvent) error { return nil }

// WebhookNotifier は通知内容をJSONでWebhookにPOSTする。
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier はWebhookNotifierを生成する。
// clientには接続先を制限したクライアントを渡すこと。
func NewWebhookNotifier(webhookURL string, client *http.Client) *WebhookNotifier {
	return &WebhookNotifier{url: webhookURL, client: client}
}

type webhookPayload struct {
	Event   string             `json:"event"`
	Text    string             `json:"text"`
	Request AccessRequestEvent `json:"request"`
}

// NotifyAccessRequest はWebhookに申請内容を送信する。2xx以外はエラーとする。
func (n *WebhookNotifier) NotifyAccessRequest(ctx context.Context, ev AccessRequestEvent) error {
	body, err := json.Marshal(webhookPayload{
		Event:   "access_request.created",
		Text:    summary(ev),
		Request: ev,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "VendorHub/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

const mailtoSubject = "VendorHub access request"

// MailtoLink は管理者宛ての承認依頼メールを開くmailto:リンクを生成する。
// adminが空の場合は空文字列を返す。
func MailtoLink(admin string, ev AccessRequestEvent) string {
	if admin == "" {
		return ""
	}
	return "mailto:" + admin +
		"?subject=" + escape(mailtoSubject) +
		"&body=" + escape(mailtoBody(ev))
}

func mailtoBody(ev AccessRequestEvent) string {
	message := ev.Message
	if message == "" {
		message = "(none)"
	}
	return fmt.Sprintf("%s.\nMessage: %s\nRequest ID: %s", summary(ev), message, ev.ID)
}

func summary(ev AccessRequestEvent) string {
	who := ev.Email
	if ev.Name != "" {
		who = fmt.Sprintf("%s (%s)", ev.Email, ev.Name)
	}
	return "Please approve access for " + who
}

// escape はスペースを%20としてエンコードする。mailtoでは+が空白として扱われないため。
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// compile-time interface check
var (
	_ Notifier = Noop{}
	_ Notifier = (*WebhookNotifier)(nil)
)
