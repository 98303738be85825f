package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paysettle/internal/clock"
	obstracing "github.com/smallbiznis/paysettle/internal/observability/tracing"
	"go.uber.org/zap"
)

const (
	MaxDescriptionLength = 25
	CheckoutTTL          = 15 * time.Minute

	successCode      = "00"
	paymentRequests  = "/v2/payment-requests"
	maxResponseBytes = 1 << 20
)

type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type CheckoutRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	BuyerName   string
	BuyerEmail  string
	Items       []Item
}

type CheckoutLink struct {
	OrderCode     int64
	PaymentLinkID string
	CheckoutURL   string
	QRCode        string
	DeepLink      string
	ExpiresAt     time.Time
	Mock          bool
}

type Transaction struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentInfo is the gateway's current view of a payment request.
type PaymentInfo struct {
	OrderCode     int64
	PaymentLinkID string
	Status        string
	Amount        int64
	AmountPaid    int64
	Reference     string
	Raw           json.RawMessage
}

type Client struct {
	cfg   Config
	http  *http.Client
	log   *zap.Logger
	clock clock.Clock
}

func New(cfg Config, log *zap.Logger, clk clock.Clock) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:   cfg,
		http:  obstracing.WrapHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		log:   log.Named("gateway"),
		clock: clk,
	}
}

func (c *Client) Configured() bool { return c.cfg.Configured() }

type createPaymentBody struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	BuyerName   string `json:"buyerName,omitempty"`
	BuyerEmail  string `json:"buyerEmail,omitempty"`
	Items       []Item `json:"items,omitempty"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	ExpiredAt   int64  `json:"expiredAt"`
	Signature   string `json:"signature"`
}

type envelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

type createPaymentData struct {
	PaymentLinkID string          `json:"paymentLinkId"`
	OrderCode     int64           `json:"orderCode"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	CheckoutURL   string          `json:"checkoutUrl"`
	QRCode        string          `json:"qrCode"`
	DeepLink      string          `json:"deepLink"`
	ExpiredAt     *int64          `json:"expiredAt"`
}

type paymentInfoData struct {
	ID           string          `json:"id"`
	OrderCode    int64           `json:"orderCode"`
	Amount       decimal.Decimal `json:"amount"`
	AmountPaid   decimal.Decimal `json:"amountPaid"`
	Status       string          `json:"status"`
	Transactions []Transaction   `json:"transactions"`
}

// RequestCheckoutLink asks the gateway for a hosted checkout page. A client
// without credentials returns a deterministic mock link instead.
func (c *Client) RequestCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.OrderCode <= 0 {
		return nil, ErrInvalidOrderCode
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	description := TruncateDescription(req.Description)
	if description != strings.TrimSpace(req.Description) {
		c.log.Warn("checkout description truncated",
			zap.Int64("order_code", req.OrderCode),
			zap.Int("original_length", utf8.RuneCountInString(strings.TrimSpace(req.Description))),
			zap.Int("max_length", MaxDescriptionLength),
		)
	}

	expiresAt := c.clock.Now().Add(CheckoutTTL).UTC()

	if !c.cfg.Configured() {
		c.log.Warn("gateway credentials missing, issuing mock checkout link",
			zap.Int64("order_code", req.OrderCode),
		)
		return MockLink(req.OrderCode, expiresAt), nil
	}

	body := createPaymentBody{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: description,
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		Items:       req.Items,
		CancelURL:   c.cfg.CancelURL,
		ReturnURL:   c.cfg.ReturnURL,
		ExpiredAt:   expiresAt.Unix(),
		Signature: Sign(c.cfg.ChecksumKey, []byte(checksumData(
			req.Amount, c.cfg.CancelURL, description, req.OrderCode, c.cfg.ReturnURL,
		))),
	}

	raw, err := c.do(ctx, "create_payment_link", http.MethodPost, paymentRequests, body)
	if err != nil {
		c.log.Error("gateway checkout link request failed",
			zap.Int64("order_code", req.OrderCode),
			zap.Error(err),
		)
		return nil, err
	}

	var data createPaymentData
	if err := json.Unmarshal(raw, &data); err != nil || strings.TrimSpace(data.CheckoutURL) == "" {
		c.log.Error("gateway checkout link response invalid", zap.Int64("order_code", req.OrderCode))
		return nil, &Error{Op: "create_payment_link", Err: ErrUnexpectedResponse}
	}

	link := &CheckoutLink{
		OrderCode:     req.OrderCode,
		PaymentLinkID: strings.TrimSpace(data.PaymentLinkID),
		CheckoutURL:   strings.TrimSpace(data.CheckoutURL),
		QRCode:        data.QRCode,
		DeepLink:      data.DeepLink,
		ExpiresAt:     expiresAt,
	}
	if data.ExpiredAt != nil && *data.ExpiredAt > 0 {
		link.ExpiresAt = time.Unix(*data.ExpiredAt, 0).UTC()
	}
	return link, nil
}

// GetPaymentInfo reads the gateway's status for orderCode.
func (c *Client) GetPaymentInfo(ctx context.Context, orderCode int64) (*PaymentInfo, error) {
	if orderCode <= 0 {
		return nil, ErrInvalidOrderCode
	}
	if !c.cfg.Configured() {
		return nil, &Error{Op: "get_payment_info", Err: ErrNotConfigured}
	}

	raw, err := c.do(ctx, "get_payment_info", http.MethodGet, paymentRequests+"/"+strconv.FormatInt(orderCode, 10), nil)
	if err != nil {
		c.log.Error("gateway payment info request failed",
			zap.Int64("order_code", orderCode),
			zap.Error(err),
		)
		return nil, err
	}

	var data paymentInfoData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Op: "get_payment_info", Err: ErrUnexpectedResponse}
	}

	info := &PaymentInfo{
		OrderCode:     data.OrderCode,
		PaymentLinkID: strings.TrimSpace(data.ID),
		Status:        strings.TrimSpace(data.Status),
		Amount:        data.Amount.Round(0).IntPart(),
		AmountPaid:    data.AmountPaid.Round(0).IntPart(),
		Raw:           raw,
	}
	if info.OrderCode == 0 {
		info.OrderCode = orderCode
	}
	for _, tx := range data.Transactions {
		if ref := strings.TrimSpace(tx.Reference); ref != "" {
			info.Reference = ref
		}
	}
	return info, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	req.Header.Set("x-client-id", c.cfg.ClientID)
	req.Header.Set("x-api-key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Code: env.Code, Desc: env.Desc}
	}
	if decodeErr != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Err: ErrUnexpectedResponse}
	}
	if env.Code != successCode {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Code: env.Code, Desc: env.Desc}
	}
	return env.Data, nil
}

// TruncateDescription trims s and cuts it to MaxDescriptionLength runes.
func TruncateDescription(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	return string([]rune(s)[:MaxDescriptionLength])
}

// MockLink is the link handed out when the gateway is not configured.
func MockLink(orderCode int64, expiresAt time.Time) *CheckoutLink {
	code := strconv.FormatInt(orderCode, 10)
	return &CheckoutLink{
		OrderCode:     orderCode,
		PaymentLinkID: "mock-" + code,
		CheckoutURL:   fmt.Sprintf("https://pay.mock.local/web/%s", code),
		QRCode:        "MOCKQR-" + code,
		DeepLink:      "mockpay://checkout/" + code,
		ExpiresAt:     expiresAt,
		Mock:          true,
	}
}
