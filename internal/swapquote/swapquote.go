// Package swapquote is a thin, retrying HTTP client over a 1inch-v6-style
// swap aggregator API: given a token pair and amount it returns a price
// quote and, separately, ready-to-submit swap calldata. The bot treats
// the aggregator as a black box external collaborator; this package only
// knows its request/response shapes and its rate limit.
package swapquote

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/0xTwyne/twyne-liquidation-bot/pkg/util"
)

// Request describes one swap to be quoted or built.
type Request struct {
	ChainID   int64
	FromToken common.Address
	ToToken   common.Address
	AmountWei *big.Int
	FromAddr  common.Address
	SlippageBps int
}

// Quote is the aggregator's price response.
type Quote struct {
	ToAmountWei *big.Int
	EstimatedGas int64
}

// Client is the surface vault adapters depend on.
type Client interface {
	GetQuote(ctx context.Context, req Request) (*Quote, error)
	GetSwapCalldata(ctx context.Context, req Request) ([]byte, error)
}

// httpClient is the 1inch-v6 HTTP implementation. It rate limits itself
// to avoid tripping the aggregator's own per-key limiter, and retries
// transient failures the way the original bot's request decorator did.
type httpClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a swap-quote client against a 1inch-v6-compatible
// base URL, authenticating with a bearer API key and limiting itself to
// maxRPS requests per second.
func NewHTTPClient(baseURL, apiKey string, maxRPS float64) Client {
	return &httpClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(maxRPS), 1),
	}
}

type quoteResponse struct {
	ToAmount     string `json:"toAmount"`
	EstimatedGas int64  `json:"estimatedGas"`
}

// GetQuote fetches a price-only quote (no calldata) for req.
func (c *httpClient) GetQuote(ctx context.Context, req Request) (*Quote, error) {
	var result *Quote
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		url := fmt.Sprintf("%s/%d/quote?src=%s&dst=%s&amount=%s",
			c.baseURL, req.ChainID, req.FromToken.Hex(), req.ToToken.Hex(), req.AmountWei.String())

		var resp quoteResponse
		if err := c.getJSON(ctx, url, &resp); err != nil {
			return err
		}

		toAmount, ok := new(big.Int).SetString(resp.ToAmount, 10)
		if !ok {
			return fmt.Errorf("swapquote: malformed toAmount %q", resp.ToAmount)
		}
		result = &Quote{ToAmountWei: toAmount, EstimatedGas: resp.EstimatedGas}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("swapquote: get quote: %w", err)
	}
	return result, nil
}

type swapResponse struct {
	Tx struct {
		Data string `json:"data"`
	} `json:"tx"`
}

// GetSwapCalldata fetches the full swap transaction payload for req and
// returns only the calldata; callers re-target it at their own
// liquidator/router contract rather than the aggregator's.
func (c *httpClient) GetSwapCalldata(ctx context.Context, req Request) ([]byte, error) {
	var calldata []byte
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		url := fmt.Sprintf("%s/%d/swap?src=%s&dst=%s&amount=%s&from=%s&slippage=%d",
			c.baseURL, req.ChainID, req.FromToken.Hex(), req.ToToken.Hex(),
			req.AmountWei.String(), req.FromAddr.Hex(), req.SlippageBps)

		var resp swapResponse
		if err := c.getJSON(ctx, url, &resp); err != nil {
			return err
		}
		calldata = util.Hex2Bytes(resp.Tx.Data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("swapquote: get swap calldata: %w", err)
	}
	return calldata, nil
}

func (c *httpClient) getJSON(ctx context.Context, url string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
