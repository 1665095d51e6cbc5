package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"edu-subscription-payments/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PaymentGateway = (*ZibalGateway)(nil)

const defaultBaseURL = "https://gateway.zibal.ir"

// ZibalGateway implements the PaymentGateway port with direct HTTP calls to
// Zibal's v1 API. Credentials and URLs are injected here so tests can point
// the adapter at a fake server; nothing is read from process globals.
type ZibalGateway struct {
	merchant    string
	callbackURL string
	baseURL     string
	client      *http.Client
}

func NewZibalGateway(merchant, callbackURL, baseURL string, timeout time.Duration) *ZibalGateway {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ZibalGateway{
		merchant:    merchant,
		callbackURL: callbackURL,
		baseURL:     baseURL,
		client:      &http.Client{Timeout: timeout},
	}
}

func (g *ZibalGateway) Name() string { return "zibal" }

// zibalRequestResponse is the provider's answer to /v1/request.
type zibalRequestResponse struct {
	TrackID int64  `json:"trackId"`
	Result  int    `json:"result"`
	Message string `json:"message"`
}

// zibalVerifyResponse is the provider's answer to /v1/verify.
type zibalVerifyResponse struct {
	Result     int    `json:"result"`
	Status     int    `json:"status"`
	Amount     int64  `json:"amount"`
	PaidAt     string `json:"paidAt"`
	RefNumber  any    `json:"refNumber"`
	CardNumber string `json:"cardNumber"`
	OrderID    string `json:"orderId"`
	Message    string `json:"message"`
}

func (g *ZibalGateway) RequestPayment(ctx context.Context, amount int64, description, orderID, mobile string) (*adapter.RequestReply, error) {
	body := map[string]interface{}{
		"merchant":    g.merchant,
		"amount":      amount,
		"callbackUrl": g.callbackURL,
		"description": description,
		"orderId":     orderID,
		"mobile":      mobile,
	}

	var resp zibalRequestResponse
	if err := g.post(ctx, "/v1/request", body, &resp); err != nil {
		return nil, err
	}

	reply := &adapter.RequestReply{
		Result:  resp.Result,
		Message: resp.Message,
	}
	if resp.TrackID != 0 {
		reply.TrackID = strconv.FormatInt(resp.TrackID, 10)
		reply.PayURL = fmt.Sprintf("%s/start/%d", g.baseURL, resp.TrackID)
	}
	return reply, nil
}

func (g *ZibalGateway) VerifyPayment(ctx context.Context, trackID string) (*adapter.VerifyReply, error) {
	tid, err := strconv.ParseInt(trackID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed track id %q: %w", trackID, err)
	}

	body := map[string]interface{}{
		"merchant": g.merchant,
		"trackId":  tid,
	}

	var resp zibalVerifyResponse
	if err := g.post(ctx, "/v1/verify", body, &resp); err != nil {
		return nil, err
	}

	reply := &adapter.VerifyReply{
		Outcome:    classify(resp.Result, resp.Status),
		StatusCode: resp.Status,
		ResultCode: resp.Result,
		Amount:     resp.Amount,
		CardNumber: resp.CardNumber,
		OrderID:    resp.OrderID,
		Message:    resp.Message,
		RefNumber:  formatRefNumber(resp.RefNumber),
	}
	if resp.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, resp.PaidAt); err == nil {
			reply.PaidAt = t
		}
	}
	return reply, nil
}

// classify maps the provider's opaque numeric codes onto the closed outcome
// enum. Unlisted codes deliberately land on OutcomeUnknown so the
// orchestrator fails closed.
func classify(result, status int) adapter.VerifyOutcome {
	switch result {
	case 100:
		return adapter.OutcomeSuccess
	case 201:
		return adapter.OutcomeAlreadyVerified
	}
	switch status {
	case 1, 2:
		return adapter.OutcomeSuccess
	case -1:
		return adapter.OutcomeProcessing
	case -2:
		return adapter.OutcomeGatewayFailure
	case 3:
		return adapter.OutcomeUserCanceled
	case 7:
		return adapter.OutcomeRateLimited
	case 8:
		return adapter.OutcomeRateLimitedCount
	case 9:
		return adapter.OutcomeRateLimitedAmount
	case 10:
		return adapter.OutcomeInvalidCardIssuer
	case 11:
		return adapter.OutcomeSwitchError
	case 12:
		return adapter.OutcomeCardNotFound
	default:
		return adapter.OutcomeUnknown
	}
}

// refNumber comes back as a number for card payments and null otherwise.
func formatRefNumber(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case json.Number:
		return n.String()
	default:
		return ""
	}
}

func (g *ZibalGateway) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
	}
	return nil
}
