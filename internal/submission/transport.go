package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"staygate/internal/submission/models"
	dErrors "staygate/pkg/domain-errors"
)

// GatewayResponse is the successful gateway answer. Body is passed through
// unmodified; SubmissionID is extracted from it when present.
type GatewayResponse struct {
	Body         string
	SubmissionID string
}

// Transport builds, signs and delivers stay-report submissions to the
// government gateway.
type Transport struct {
	client      *http.Client
	baseURL     string
	formID      string
	formVersion string
	tokens      *TokenSource
	tracer      trace.Tracer
	logger      *slog.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *Transport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithTransportLogger sets a logger for operational reporting.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport builds a Transport against the gateway base URL.
func NewTransport(baseURL, formID, formVersion string, tokens *TokenSource, timeout time.Duration, opts ...TransportOption) *Transport {
	t := &Transport{
		client:      &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		formID:      formID,
		formVersion: formVersion,
		tokens:      tokens,
		tracer:      otel.Tracer("staygate/submission"),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Submit builds the submission document, signs a fresh assertion and posts
// both to the gateway validation endpoint. Non-2xx responses come back as
// classified domain errors (auth, data validation or transport).
func (t *Transport) Submit(ctx context.Context, guest models.Guest, creds Credentials) (*GatewayResponse, error) {
	document, err := BuildXML(guest)
	if err != nil {
		return nil, err
	}

	token, err := t.tokens.SignedToken(creds)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/eform/validate?identifier=%s&version=%s",
		t.baseURL, url.QueryEscape(t.formID), url.QueryEscape(t.formVersion))

	payload, err := json.Marshal(map[string]string{"form": document})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal gateway payload")
	}

	ctx, span := t.tracer.Start(ctx, "gateway.validate",
		trace.WithAttributes(
			attribute.String("gateway.form_id", t.formID),
			attribute.String("gateway.form_version", t.formVersion),
		))
	defer span.End()

	// The request context must descend from the span context so the span
	// propagates into the outbound call.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway unreachable")
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "gateway request failed")
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		classified := ClassifyGatewayFailure(resp.StatusCode, string(body))
		span.SetStatus(codes.Error, "gateway rejected submission")
		t.logger.WarnContext(ctx, "gateway rejected submission",
			"status", resp.StatusCode,
			"subject", creds.Subject,
			"error", classified,
		)
		return nil, classified
	}

	return &GatewayResponse{
		Body:         string(body),
		SubmissionID: extractSubmissionID(body),
	}, nil
}

// extractSubmissionID pulls the gateway submission id out of a JSON success
// body. Older gateway versions answer with a bare string or an empty body;
// those yield an empty id and the caller assigns a local receipt id.
func extractSubmissionID(body []byte) string {
	var envelope struct {
		SubmissionID string `json:"submissionId"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.SubmissionID != "" {
		return envelope.SubmissionID
	}
	return envelope.ID
}
