// Package chain provides the chain-data provider client: current height,
// block hash and basic block statistics from an esplora/mempool-style
// REST API.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// BlockStats carries the per-block data the engine receives.
type BlockStats struct {
	Height     int64
	Hash       string
	Timestamp  time.Time
	TxCount    int64
	AvgFeeRate int64 // sat/vB
	TotalFees  int64 // sats
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// TipHeight returns the current confirmed chain height.
func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	h, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse tip height %q", body)
	}
	return h, nil
}

// BlockHash returns the hash of the block at the given height.
func (c *Client) BlockHash(ctx context.Context, height int64) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/block-height/%d", height))
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(string(body))
	if hash == "" {
		return "", errors.Errorf("empty hash for height %d", height)
	}
	return hash, nil
}

type blockResp struct {
	ID        string `json:"id"`
	Height    int64  `json:"height"`
	Timestamp int64  `json:"timestamp"`
	TxCount   int64  `json:"tx_count"`
	Extras    struct {
		AvgFeeRate int64 `json:"avgFeeRate"`
		TotalFees  int64 `json:"totalFees"`
	} `json:"extras"`
}

// Block returns stats for the block with the given hash.
func (c *Client) Block(ctx context.Context, hash string) (*BlockStats, error) {
	body, err := c.get(ctx, "/block/"+hash)
	if err != nil {
		return nil, err
	}
	var payload blockResp
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrapf(err, "decode block %s", hash)
	}
	return &BlockStats{
		Height:     payload.Height,
		Hash:       payload.ID,
		Timestamp:  time.Unix(payload.Timestamp, 0).UTC(),
		TxCount:    payload.TxCount,
		AvgFeeRate: payload.Extras.AvgFeeRate,
		TotalFees:  payload.Extras.TotalFees,
	}, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GET %s: status %d: %s", path, resp.StatusCode, truncate(body))
	}
	return body, nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
