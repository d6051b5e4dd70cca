package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/directdebit/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	EnvironmentSandbox = "sandbox"
	EnvironmentLive    = "live"

	SandboxURL = "https://api-sandbox.gocardless.com"
	LiveURL    = "https://api.gocardless.com"

	apiVersion = "2015-07-06"
)

// Client is the subset of the processor API the checkout and reconciliation flows use.
type Client interface {
	CreatePayment(ctx context.Context, params CreatePaymentParams, idempotencyKey string) (Payment, error)
	GetPayment(ctx context.Context, id string) (Payment, error)
	GetMandate(ctx context.Context, id string) (Mandate, error)
	CreateInstalmentSchedule(ctx context.Context, params CreateInstalmentScheduleParams, idempotencyKey string) (InstalmentSchedule, error)
	GetInstalmentSchedule(ctx context.Context, id string) (InstalmentSchedule, error)
	CreateRedirectFlow(ctx context.Context, params CreateRedirectFlowParams) (RedirectFlow, error)
	CompleteRedirectFlow(ctx context.Context, id string, sessionToken string) (RedirectFlow, error)
	GetRedirectFlow(ctx context.Context, id string) (RedirectFlow, error)
	GetCustomerBankAccount(ctx context.Context, id string) (CustomerBankAccount, error)
	LookupBankDetails(ctx context.Context, params BankDetailsLookupParams) (BankDetailsLookup, error)
}

type Options struct {
	Environment string
	AccessToken string
	// BaseURL overrides the environment endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

type HTTPClient struct {
	baseURL     string
	environment string
	accessToken string
	client      *http.Client
	tracer      trace.Tracer
	metrics     *obsmetrics.DirectDebitMetrics
}

var _ Client = (*HTTPClient)(nil)

// New validates credentials and environment; both failures are configuration errors.
func New(opts Options) (*HTTPClient, error) {
	token := strings.TrimSpace(opts.AccessToken)
	if token == "" {
		return nil, ErrMissingAccessToken
	}

	env := strings.ToLower(strings.TrimSpace(opts.Environment))
	var baseURL string
	switch env {
	case EnvironmentSandbox:
		baseURL = SandboxURL
	case EnvironmentLive:
		baseURL = LiveURL
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnvironment, opts.Environment)
	}
	if override := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); override != "" {
		baseURL = override
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}

	return &HTTPClient{
		baseURL:     baseURL,
		environment: env,
		accessToken: token,
		client:      httpClient,
		tracer:      otel.Tracer("directdebit/gocardless"),
		metrics:     obsmetrics.DirectDebit(),
	}, nil
}

func (c *HTTPClient) Environment() string { return c.environment }

func (c *HTTPClient) CreatePayment(ctx context.Context, params CreatePaymentParams, idempotencyKey string) (Payment, error) {
	var out struct {
		Payments Payment `json:"payments"`
	}
	err := c.do(ctx, "payments.create", http.MethodPost, "/payments", map[string]any{"payments": params}, idempotencyKey, &out)
	if id, ok := conflictingID(err); ok {
		return c.GetPayment(ctx, id)
	}
	return out.Payments, err
}

func (c *HTTPClient) GetPayment(ctx context.Context, id string) (Payment, error) {
	var out struct {
		Payments Payment `json:"payments"`
	}
	err := c.do(ctx, "payments.get", http.MethodGet, "/payments/"+url.PathEscape(id), nil, "", &out)
	return out.Payments, err
}

func (c *HTTPClient) GetMandate(ctx context.Context, id string) (Mandate, error) {
	var out struct {
		Mandates Mandate `json:"mandates"`
	}
	err := c.do(ctx, "mandates.get", http.MethodGet, "/mandates/"+url.PathEscape(id), nil, "", &out)
	return out.Mandates, err
}

func (c *HTTPClient) CreateInstalmentSchedule(ctx context.Context, params CreateInstalmentScheduleParams, idempotencyKey string) (InstalmentSchedule, error) {
	var out struct {
		Schedules InstalmentSchedule `json:"instalment_schedules"`
	}
	err := c.do(ctx, "instalment_schedules.create", http.MethodPost, "/instalment_schedules", map[string]any{"instalment_schedules": params}, idempotencyKey, &out)
	if id, ok := conflictingID(err); ok {
		return c.GetInstalmentSchedule(ctx, id)
	}
	return out.Schedules, err
}

func (c *HTTPClient) GetInstalmentSchedule(ctx context.Context, id string) (InstalmentSchedule, error) {
	var out struct {
		Schedules InstalmentSchedule `json:"instalment_schedules"`
	}
	err := c.do(ctx, "instalment_schedules.get", http.MethodGet, "/instalment_schedules/"+url.PathEscape(id), nil, "", &out)
	return out.Schedules, err
}

func (c *HTTPClient) CreateRedirectFlow(ctx context.Context, params CreateRedirectFlowParams) (RedirectFlow, error) {
	var out struct {
		Flows RedirectFlow `json:"redirect_flows"`
	}
	err := c.do(ctx, "redirect_flows.create", http.MethodPost, "/redirect_flows", map[string]any{"redirect_flows": params}, "", &out)
	return out.Flows, err
}

func (c *HTTPClient) CompleteRedirectFlow(ctx context.Context, id string, sessionToken string) (RedirectFlow, error) {
	var out struct {
		Flows RedirectFlow `json:"redirect_flows"`
	}
	body := map[string]any{"data": map[string]string{"session_token": sessionToken}}
	err := c.do(ctx, "redirect_flows.complete", http.MethodPost, "/redirect_flows/"+url.PathEscape(id)+"/actions/complete", body, "", &out)
	return out.Flows, err
}

func (c *HTTPClient) GetRedirectFlow(ctx context.Context, id string) (RedirectFlow, error) {
	var out struct {
		Flows RedirectFlow `json:"redirect_flows"`
	}
	err := c.do(ctx, "redirect_flows.get", http.MethodGet, "/redirect_flows/"+url.PathEscape(id), nil, "", &out)
	return out.Flows, err
}

func (c *HTTPClient) GetCustomerBankAccount(ctx context.Context, id string) (CustomerBankAccount, error) {
	var out struct {
		Accounts CustomerBankAccount `json:"customer_bank_accounts"`
	}
	err := c.do(ctx, "customer_bank_accounts.get", http.MethodGet, "/customer_bank_accounts/"+url.PathEscape(id), nil, "", &out)
	return out.Accounts, err
}

func (c *HTTPClient) LookupBankDetails(ctx context.Context, params BankDetailsLookupParams) (BankDetailsLookup, error) {
	var out struct {
		Lookups BankDetailsLookup `json:"bank_details_lookups"`
	}
	err := c.do(ctx, "bank_details_lookups.create", http.MethodPost, "/bank_details_lookups", map[string]any{"bank_details_lookups": params}, "", &out)
	return out.Lookups, err
}

func (c *HTTPClient) do(
	ctx context.Context,
	operation string,
	method string,
	path string,
	body any,
	idempotencyKey string,
	out any,
) (err error) {
	ctx, span := c.tracer.Start(ctx, "gocardless."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gocardless.operation", operation),
			attribute.String("gocardless.environment", c.environment),
		),
	)
	start := time.Now()
	defer func() {
		outcome := obsmetrics.RemoteOutcomeOK
		if err != nil {
			outcome = obsmetrics.RemoteOutcomeDeclined
			if IsTransient(err) {
				outcome = obsmetrics.RemoteOutcomeTransient
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		c.metrics.ObserveRemoteCall(operation, outcome, time.Since(start))
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return marshalErr
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("GoCardless-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Error APIError `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Type == "" {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if resp.StatusCode >= http.StatusInternalServerError {
			apiErr.Type = ErrorTypeGoCardless
		}
		return apiErr
	}
	apiErr := envelope.Error
	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

func conflictingID(err error) (string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	return apiErr.ConflictingResourceID()
}
