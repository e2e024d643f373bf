package submission

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"

	dErrors "staygate/pkg/domain-errors"
)

// newTestTransport wires a Transport against a stub gateway, with signing
// material on a temp keystore volume.
func newTestTransport(t *testing.T, gateway *httptest.Server) *Transport {
	t.Helper()
	root := t.TempDir()
	key := generateKey(t)
	writeDerivedKeystore(t, root, tokenSubject, key)

	tokens := NewTokenSource(root, tokenKsSalt, tokenPkSalt, bridgePassword, "", "")
	return NewTransport(gateway.URL, "MVSR.HlaseniePobytu", "1.0", tokens, 5*time.Second)
}

func TestSubmitSuccess(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	var gotBody map[string]string

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"submissionId":"gov-42","status":"accepted"}`))
	}))
	defer gateway.Close()

	tr := newTestTransport(t, gateway)
	guest := sampleGuest()
	guest.HostID = "host-1"

	resp, err := tr.Submit(context.Background(), guest, Credentials{Subject: tokenSubject})
	require.NoError(t, err)

	assert.Equal(t, "/eform/validate", gotPath)
	assert.Equal(t, "identifier=MVSR.HlaseniePobytu&version=1.0", gotQuery)
	assert.True(t, strings.HasPrefix(gotAuth, "Bearer "), "token must be sent as bearer credential")
	assert.Contains(t, gotBody["form"], "<RegistrationOfStay")

	assert.Equal(t, "gov-42", resp.SubmissionID)
	assert.JSONEq(t, `{"submissionId":"gov-42","status":"accepted"}`, resp.Body,
		"response body passes through unmodified")
}

func TestSubmitClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   dErrors.Code
	}{
		{"auth", http.StatusUnauthorized, "unauthorized", dErrors.CodeAuth},
		{"validation", http.StatusBadRequest, "form validation failed", dErrors.CodeDataValidation},
		{"transport", http.StatusBadGateway, "upstream broken", dErrors.CodeTransport},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer gateway.Close()

			tr := newTestTransport(t, gateway)
			_, err := tr.Submit(context.Background(), sampleGuest(), Credentials{Subject: tokenSubject})
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestSubmitUnreachableGateway(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gateway.Close() // closed before use

	tr := newTestTransport(t, gateway)
	_, err := tr.Submit(context.Background(), sampleGuest(), Credentials{Subject: tokenSubject})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransport))
}

func TestSubmitWithoutSigningMaterial(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called without a token")
	}))
	defer gateway.Close()

	tokens := NewTokenSource(t.TempDir(), tokenKsSalt, tokenPkSalt, bridgePassword, "", "")
	tr := NewTransport(gateway.URL, "MVSR.HlaseniePobytu", "1.0", tokens, time.Second)

	_, err := tr.Submit(context.Background(), sampleGuest(), Credentials{Subject: "nobody"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}

// stampTracer starts spans carrying a fixed span context, so tests can
// recognize contexts that descend from a span it started.
type stampTracer struct {
	embedded.Tracer
	sc trace.SpanContext
}

func (st stampTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx = trace.ContextWithSpanContext(ctx, st.sc)
	return ctx, trace.SpanFromContext(ctx)
}

// spanCaptureTransport records the span context attached to the outbound
// request before delegating to the default transport.
type spanCaptureTransport struct {
	got *trace.SpanContext
}

func (c spanCaptureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	*c.got = trace.SpanContextFromContext(req.Context())
	return http.DefaultTransport.RoundTrip(req)
}

func TestSubmitRequestCarriesSpanContext(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	tr := newTestTransport(t, gateway)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
	})
	tr.tracer = stampTracer{sc: sc}

	var got trace.SpanContext
	tr.client.Transport = spanCaptureTransport{got: &got}

	_, err := tr.Submit(context.Background(), sampleGuest(), Credentials{Subject: tokenSubject})
	require.NoError(t, err)
	assert.Equal(t, sc.TraceID(), got.TraceID(),
		"outbound request context must descend from the submit span")
}

func TestExtractSubmissionID(t *testing.T) {
	assert.Equal(t, "a", extractSubmissionID([]byte(`{"submissionId":"a"}`)))
	assert.Equal(t, "b", extractSubmissionID([]byte(`{"id":"b"}`)))
	assert.Equal(t, "", extractSubmissionID([]byte(`not json`)))
	assert.Equal(t, "", extractSubmissionID(nil))
}
