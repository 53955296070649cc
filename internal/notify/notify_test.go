package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestWebhookSink_PostsJSON(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	if err := sink.Post(context.Background(), "hello"); err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	if received["text"] != "hello" {
		t.Fatalf("got text %q, want %q", received["text"], "hello")
	}
}

func TestWebhookSink_EmptyURLIsNoop(t *testing.T) {
	sink := NewWebhookSink("")
	if err := sink.Post(context.Background(), "hello"); err != nil {
		t.Fatalf("expected no-op success, got error: %v", err)
	}
}

func TestWebhookSink_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	if err := sink.Post(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestNoopSink(t *testing.T) {
	if err := (NoopSink{}).Post(context.Background(), "anything"); err != nil {
		t.Fatalf("NoopSink.Post returned error: %v", err)
	}
}

func TestSpyLink(t *testing.T) {
	addr := common.HexToAddress("0x000000000000000000000000000000000000ff")
	link := SpyLink("https://spy.example.com", addr)

	if !strings.HasPrefix(link, "https://spy.example.com/account/") {
		t.Fatalf("unexpected link prefix: %s", link)
	}
	if !strings.HasSuffix(link, "/255") {
		t.Fatalf("expected sub-account 255 in link, got %s", link)
	}
}

func TestOwnerAndSubAccount(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111110a")
	owner, sub := ownerAndSubAccount(addr)

	if sub != 0x0a {
		t.Fatalf("sub-account = %d, want 10", sub)
	}
	if owner[19] != 0 {
		t.Fatalf("expected low byte zeroed, got %x", owner[19])
	}
	for i := 0; i < 19; i++ {
		if owner[i] != addr[i] {
			t.Fatalf("owner bytes diverge from address at index %d", i)
		}
	}
}

func TestMentions(t *testing.T) {
	if got := Mentions(nil); got != "" {
		t.Fatalf("Mentions(nil) = %q, want empty", got)
	}
	got := Mentions([]string{"U1", "U2"})
	want := "<@U1> <@U2>"
	if got != want {
		t.Fatalf("Mentions = %q, want %q", got, want)
	}
}
