package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testEvent() AccessRequestEvent {
	return AccessRequestEvent{
		ID:        "req-1",
		Email:     "hana@example.com",
		Name:      "Hana",
		Message:   "need access & soon",
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got webhookPayload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	if err := n.NotifyAccessRequest(context.Background(), testEvent()); err != nil {
		t.Fatalf("NotifyAccessRequest() error: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if got.Event != "access_request.created" || got.Request.Email != "hana@example.com" {
		t.Errorf("payload = %+v", got)
	}
	if !strings.Contains(got.Text, "hana@example.com (Hana)") {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestWebhookNotifier_Non2xx_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	if err := n.NotifyAccessRequest(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestWebhookNotifier_CanceledContext_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	if err := n.NotifyAccessRequest(ctx, testEvent()); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNoop_ReturnsNil(t *testing.T) {
	if err := (Noop{}).NotifyAccessRequest(context.Background(), testEvent()); err != nil {
		t.Fatalf("Noop error: %v", err)
	}
}

func TestMailtoLink(t *testing.T) {
	link := MailtoLink("admin@example.com", testEvent())

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("url.Parse(%q) error: %v", link, err)
	}
	if u.Scheme != "mailto" || u.Opaque != "admin@example.com" {
		t.Errorf("scheme/opaque = %q/%q", u.Scheme, u.Opaque)
	}
	if strings.Contains(link, "+") {
		t.Errorf("spaces must be encoded as %%20: %q", link)
	}

	q := u.Query()
	if q.Get("subject") != "VendorHub access request" {
		t.Errorf("subject = %q", q.Get("subject"))
	}
	body := q.Get("body")
	for _, want := range []string{
		"Please approve access for hana@example.com (Hana).",
		"Message: need access & soon",
		"Request ID: req-1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q does not contain %q", body, want)
		}
	}
}

func TestMailtoLink_Defaults(t *testing.T) {
	ev := AccessRequestEvent{ID: "req-2", Email: "a@example.com"}

	u, err := url.Parse(MailtoLink("admin@example.com", ev))
	if err != nil {
		t.Fatalf("url.Parse error: %v", err)
	}
	body := u.Query().Get("body")
	if !strings.Contains(body, "access for a@example.com.") || !strings.Contains(body, "Message: (none)") {
		t.Errorf("body = %q", body)
	}

	if got := MailtoLink("", ev); got != "" {
		t.Errorf("MailtoLink with empty admin = %q, want empty", got)
	}
}
