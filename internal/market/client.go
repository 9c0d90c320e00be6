// Package market provides the inscription marketplace client: order
// creation against the platform wallet and order status lookups.
package market

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// External order status vocabulary.
const (
	StatusPending               = "pending"
	StatusPaymentSuccess        = "payment_success"
	StatusReady                 = "ready"
	StatusInscribing            = "inscribing"
	StatusMinted                = "minted"
	StatusSent                  = "sent"
	StatusConfirmed             = "confirmed"
	StatusCanceled              = "canceled"
	StatusRefunded              = "refunded"
	StatusPaymentNotEnough      = "payment_notenough"
	StatusPaymentOverpay        = "payment_overpay"
	StatusPaymentWithInscribing = "payment_withinscription"
)

// Outcome is the local classification of an external order status.
type Outcome int

const (
	// OutcomePending: not decided yet, re-check on the next cycle.
	OutcomePending Outcome = iota
	// OutcomeSuccess: inscription landed on-chain with full file data.
	OutcomeSuccess
	// OutcomeFailure: the order can never complete.
	OutcomeFailure
)

// OrderFile is one inscribed file within an order.
type OrderFile struct {
	Filename      string `json:"filename"`
	InscriptionID string `json:"inscriptionId"`
	TxID          string `json:"txid"`
}

// CreateOrderRequest is the payload for a new inscription order.
type CreateOrderRequest struct {
	ReceiveAddress string `json:"receiveAddress"`
	FeeRate        int64  `json:"feeRate"`
	OutputValue    int64  `json:"outputValue"`
	Files          []struct {
		Filename string `json:"filename"`
		DataURL  string `json:"dataURL"`
	} `json:"files"`
}

// AddFile appends a text payload as a base64 data URL.
func (r *CreateOrderRequest) AddFile(filename, content string) {
	r.Files = append(r.Files, struct {
		Filename string `json:"filename"`
		DataURL  string `json:"dataURL"`
	}{
		Filename: filename,
		DataURL:  "data:text/plain;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(content)),
	})
}

// CreateOrderResult is the marketplace's answer to an order request.
type CreateOrderResult struct {
	OrderID    string `json:"orderId"`
	PayAddress string `json:"payAddress"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
}

// OrderStatusResult is the current external view of an order.
type OrderStatusResult struct {
	OrderID string      `json:"orderId"`
	Status  string      `json:"status"`
	Files   []OrderFile `json:"files"`
}

// FirstComplete returns the first file carrying both an inscription id and
// a transaction id, or nil.
func (r *OrderStatusResult) FirstComplete() *OrderFile {
	for i := range r.Files {
		f := &r.Files[i]
		if f.InscriptionID != "" && f.TxID != "" {
			return f
		}
	}
	return nil
}

// Classify maps the external status to a local outcome. Deliberately the
// strictest reading: a terminal-looking status without both an inscription
// id and a txid on some file stays pending rather than force-advancing.
func (r *OrderStatusResult) Classify() Outcome {
	switch strings.ToLower(r.Status) {
	case StatusConfirmed, StatusSent, StatusMinted:
		if r.FirstComplete() != nil {
			return OutcomeSuccess
		}
		return OutcomePending
	case StatusCanceled, StatusRefunded, StatusPaymentNotEnough:
		return OutcomeFailure
	default:
		return OutcomePending
	}
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// envelope is the marketplace's standard response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// CreateOrder requests a funded inscription order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	var out CreateOrderResult
	if err := c.call(ctx, http.MethodPost, "/v2/inscribe/order/create", req, &out); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		return nil, errors.New("marketplace returned order without id")
	}
	return &out, nil
}

// OrderStatus fetches the current external status of an order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*OrderStatusResult, error) {
	var out OrderStatusResult
	if err := c.call(ctx, http.MethodGet, "/v2/inscribe/order/"+orderID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	if env.Code != 0 {
		return errors.Errorf("%s %s: marketplace error %d: %s", method, path, env.Code, env.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrapf(err, "decode %s data", path)
		}
	}
	return nil
}
