package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTelnyxSenderPostsMessage(t *testing.T) {
	var got telnyxMessageRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"msg-123"}}`))
	}))
	defer srv.Close()

	sender, err := NewTelnyxSender(TelnyxConfig{
		APIKey:     "key-1",
		FromNumber: "+15559990000",
		BaseURL:    srv.URL,
	}, nil)
	if err != nil {
		t.Fatalf("sender construction failed: %v", err)
	}

	if err := sender.SendSMS(context.Background(), "+15550001111", "See you soon"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if auth != "Bearer key-1" {
		t.Errorf("authorization = %q", auth)
	}
	if got.From != "+15559990000" || got.To != "+15550001111" || got.Text != "See you soon" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestTelnyxSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"code":"40300","title":"Blocked","detail":"recipient opted out"}]}`))
	}))
	defer srv.Close()

	sender, err := NewTelnyxSender(TelnyxConfig{
		APIKey:     "key-1",
		FromNumber: "+15559990000",
		BaseURL:    srv.URL,
	}, nil)
	if err != nil {
		t.Fatalf("sender construction failed: %v", err)
	}

	if err := sender.SendSMS(context.Background(), "+15550001111", "hi"); err == nil {
		t.Fatal("expected error status to surface")
	}
}

func TestNewTelnyxSenderValidation(t *testing.T) {
	if _, err := NewTelnyxSender(TelnyxConfig{FromNumber: "+15559990000"}, nil); err == nil {
		t.Fatal("expected missing API key to be rejected")
	}
	if _, err := NewTelnyxSender(TelnyxConfig{APIKey: "key-1"}, nil); err == nil {
		t.Fatal("expected missing from number to be rejected")
	}
}

func TestStubSendersNeverFail(t *testing.T) {
	if err := NewStubSMSSender(nil).SendSMS(context.Background(), "+15550001111", "hi"); err != nil {
		t.Fatalf("stub sms errored: %v", err)
	}
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "a@b.c"}); err != nil {
		t.Fatalf("stub email errored: %v", err)
	}
}
