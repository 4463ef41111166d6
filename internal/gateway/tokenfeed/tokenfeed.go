package tokenfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"blitz/internal/config"
	"blitz/internal/logger"
	"blitz/internal/types"

	"github.com/tidwall/gjson"
)

// Provider supplies candidate tokens, refreshed token state and recent
// social mentions.
type Provider interface {
	FetchCandidates(ctx context.Context) ([]types.TokenData, error)
	FetchToken(ctx context.Context, address string) (types.TokenData, error)
	FetchMentions(ctx context.Context, address string) ([]types.SocialMention, error)
}

// Client pulls token data from an aggregator HTTP API. Responses are parsed
// leniently: missing fields become zero values rather than errors, because
// aggregators routinely omit fields for very young tokens.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.TokenFeedConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

func (c *Client) FetchCandidates(ctx context.Context) ([]types.TokenData, error) {
	body, err := c.get(ctx, c.baseURL+"/tokens/new")
	if err != nil {
		return nil, err
	}
	results := gjson.GetBytes(body, "tokens")
	if !results.Exists() {
		return nil, fmt.Errorf("token feed response missing tokens array")
	}
	var out []types.TokenData
	results.ForEach(func(_, item gjson.Result) bool {
		out = append(out, parseToken(item))
		return true
	})
	logger.Debugf("token feed returned %d candidates", len(out))
	return out, nil
}

func (c *Client) FetchToken(ctx context.Context, address string) (types.TokenData, error) {
	body, err := c.get(ctx, c.baseURL+"/tokens/"+address)
	if err != nil {
		return types.TokenData{}, err
	}
	item := gjson.GetBytes(body, "token")
	if !item.Exists() {
		return types.TokenData{}, fmt.Errorf("token %s not found in feed", address)
	}
	return parseToken(item), nil
}

func (c *Client) FetchMentions(ctx context.Context, address string) ([]types.SocialMention, error) {
	body, err := c.get(ctx, c.baseURL+"/tokens/"+address+"/mentions")
	if err != nil {
		return nil, err
	}
	results := gjson.GetBytes(body, "mentions")
	var out []types.SocialMention
	results.ForEach(func(_, item gjson.Result) bool {
		m := types.SocialMention{
			SentimentScore: item.Get("sentiment").Float(),
			Platform:       item.Get("platform").String(),
			Text:           item.Get("text").String(),
		}
		if ts := item.Get("ts").Int(); ts > 0 {
			m.Timestamp = time.UnixMilli(ts).UTC()
		}
		out = append(out, m)
		return true
	})
	return out, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token feed request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("token feed status=%d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("token feed read failed: %w", err)
	}
	return body, nil
}

func parseToken(item gjson.Result) types.TokenData {
	td := types.TokenData{
		Address:         item.Get("address").String(),
		Symbol:          item.Get("symbol").String(),
		Name:            item.Get("name").String(),
		AgeMinutes:      item.Get("age_minutes").Float(),
		Liquidity:       item.Get("liquidity_usd").Float(),
		Holders:         int(item.Get("holders").Int()),
		CreatorTxnCount: int(item.Get("creator.txn_count").Int()),
		CreatorSellFrac: item.Get("creator.sell_frac").Float(),
		IsHoneypot:      item.Get("flags.honeypot").Bool(),
		HoneypotScore:   item.Get("flags.honeypot_score").Float(),
		EntryPrice:      item.Get("price_usd").Float(),
		MarketCap:       item.Get("market_cap").Float(),
		Volume24h:       item.Get("volume.h24").Float(),
		PriceChange5m:   item.Get("price_change.m5").Float(),
		PriceChange15m:  item.Get("price_change.m15").Float(),
		SocialScore:     item.Get("social.score").Float(),
		SocialMentions:  int(item.Get("social.mentions").Int()),
	}
	if ts := item.Get("created_at").Int(); ts > 0 {
		td.CreatedAt = time.UnixMilli(ts).UTC()
	}
	if td.AgeMinutes == 0 && !td.CreatedAt.IsZero() {
		td.AgeMinutes = time.Since(td.CreatedAt).Minutes()
	}
	return td
}

// ParseToken parses one token object from raw JSON. Exposed for tests and
// for embedders feeding cached payloads.
func ParseToken(raw []byte) types.TokenData {
	return parseToken(gjson.ParseBytes(raw))
}
