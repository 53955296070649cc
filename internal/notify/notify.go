// Package notify posts operator-facing notifications about unhealthy
// positions, liquidation opportunities and results, and recurring errors,
// throttled so a flapping vault can't flood the notification channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Sink is the destination for a rendered notification. The bot core only
// depends on this interface; swapping the webhook target (Slack, a
// generic incoming webhook, a no-op sink in tests) never touches
// scheduler code.
type Sink interface {
	Post(ctx context.Context, message string) error
}

// webhookSink posts plain-text messages to a generic incoming webhook
// URL as JSON {"text": "..."}, the lowest common denominator most chat
// webhook integrations (Slack included) accept.
type webhookSink struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSink builds a Sink that posts to url.
func NewWebhookSink(url string) Sink {
	return &webhookSink{url: url, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (s *webhookSink) Post(ctx context.Context, message string) error {
	if s.url == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopSink discards every message; used when no notification URL is
// configured or in tests that don't care about the notification stream.
type NoopSink struct{}

func (NoopSink) Post(context.Context, string) error { return nil }

// SpyLink builds the block-explorer-adjacent "spy" dashboard URL for a
// vault owner/subaccount pair, recovered from the vault address by
// XOR-ing off the EVC sub-account byte the way Ethereum Vault
// Connector sub-accounts are derived from their owning EOA.
func SpyLink(baseURL string, vaultAddr common.Address) string {
	owner, subAccount := ownerAndSubAccount(vaultAddr)
	return fmt.Sprintf("%s/account/%s/%d", baseURL, owner.Hex(), subAccount)
}

// ownerAndSubAccount recovers an EVC account's owning EOA and
// sub-account number. The EVC addresses sub-accounts by XOR-ing the
// owner's address with a single byte sub-account id in the low byte,
// so the owner is recovered the same way: XOR the candidate's low byte
// against every possible sub-account id is unnecessary, since the id is
// stored in the low byte itself relative to address 0.
func ownerAndSubAccount(addr common.Address) (common.Address, uint8) {
	subAccount := addr[19]
	var owner common.Address
	copy(owner[:], addr[:])
	owner[19] = 0
	return owner, subAccount
}

// Mentions renders a slice of chat mention IDs ("U123", "U456") as a
// space-joined string of "<@ID>" tags, or an empty string if ids is
// empty.
func Mentions(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " "
		}
		out += "<@" + id + ">"
	}
	return out
}
