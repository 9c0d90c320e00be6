// Package wallet provides the funding wallet client. The wallet only
// gates order creation; it never signs or broadcasts here.
package wallet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/pkg/errors"
)

// Balance is the wallet's spendable funds.
type Balance struct {
	Confirmed   btcutil.Amount
	Unconfirmed btcutil.Amount
}

// UTXO is one unspent output of the funding wallet.
type UTXO struct {
	TxID  string         `json:"txid"`
	Vout  uint32         `json:"vout"`
	Value btcutil.Amount `json:"value"`
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

type balanceResp struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

func (c *Client) Balance(ctx context.Context) (*Balance, error) {
	var payload balanceResp
	if err := c.get(ctx, "/wallet/balance", &payload); err != nil {
		return nil, err
	}
	return &Balance{
		Confirmed:   btcutil.Amount(payload.Confirmed),
		Unconfirmed: btcutil.Amount(payload.Unconfirmed),
	}, nil
}

type addressResp struct {
	Address string `json:"address"`
}

// Address returns the wallet's receive address, used as the inscription
// receiver.
func (c *Client) Address(ctx context.Context) (string, error) {
	var payload addressResp
	if err := c.get(ctx, "/wallet/address", &payload); err != nil {
		return "", err
	}
	if payload.Address == "" {
		return "", errors.New("wallet returned empty address")
	}
	return payload.Address, nil
}

func (c *Client) UTXOs(ctx context.Context) ([]UTXO, error) {
	var payload []UTXO
	if err := c.get(ctx, "/wallet/utxos", &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return errors.Wrapf(json.Unmarshal(body, out), "decode %s", path)
}
