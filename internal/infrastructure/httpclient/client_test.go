package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"wallet_aggregator/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		Provider: "test",
		BaseURL:  srv.URL + "/",
		Timeout:  timeout,
		Headers:  map[string]string{"X-API-Key": "secret-key"},
		Secret:   "secret-key",
	}, zap.NewNop())
}

func TestGetJSON_DecodesBodyAndSendsHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallets/0xabc", r.URL.Path)
		assert.Equal(t, "eth", r.URL.Query().Get("chain"))
		assert.Equal(t, "secret-key", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"balance":"42"}`)
	}, time.Second)

	var out struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/wallets/0xabc", url.Values{"chain": {"eth"}}, &out))
	assert.Equal(t, "42", out.Balance)
}

func TestGetJSON_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusTooManyRequests, entity.ErrTransientProvider},
		{http.StatusInternalServerError, entity.ErrTransientProvider},
		{http.StatusBadGateway, entity.ErrTransientProvider},
		{http.StatusServiceUnavailable, entity.ErrTransientProvider},
		{http.StatusBadRequest, entity.ErrPermanentProvider},
		{http.StatusUnauthorized, entity.ErrPermanentProvider},
		{http.StatusNotFound, entity.ErrPermanentProvider},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}, time.Second)

			err := c.GetJSON(context.Background(), "/x", nil, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)

			var pe *entity.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.status, pe.StatusCode)
			assert.Equal(t, "test", pe.Provider)
			assert.Equal(t, entity.IsRetryable(err), tc.kind == entity.ErrTransientProvider)
		})
	}
}

func TestGetJSON_MalformedBodyIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}, time.Second)

	var out map[string]any
	err := c.GetJSON(context.Background(), "/x", nil, &out)
	assert.ErrorIs(t, err, entity.ErrPermanentProvider)
}

func TestGetJSON_TimeoutIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = io.WriteString(w, `{}`)
	}, 50*time.Millisecond)

	err := c.GetJSON(context.Background(), "/slow", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrTransientProvider)
	assert.True(t, entity.IsRetryable(err))
}

func TestGetJSON_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := New(Options{Provider: "test", BaseURL: base, Timeout: time.Second}, zap.NewNop())
	err := c.GetJSON(context.Background(), "/x", nil, nil)
	assert.ErrorIs(t, err, entity.ErrTransientProvider)
}

func TestNew_DefaultsTimeout(t *testing.T) {
	c := New(Options{Provider: "p", BaseURL: "http://localhost"}, zap.NewNop())
	assert.Equal(t, DefaultTimeout, c.Timeout())
}

func TestCallRPC(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(body), `"eth_getBalance"`):
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":"0x14d1120d7b160000"}`)
		case strings.Contains(string(body), `"throttled"`):
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"limit exceeded"}}`)
		default:
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
		}
	}, time.Second)

	var hexBalance string
	require.NoError(t, c.CallRPC(context.Background(), "", "eth_getBalance", []any{"0xabc", "latest"}, &hexBalance))
	assert.Equal(t, "0x14d1120d7b160000", hexBalance)

	err := c.CallRPC(context.Background(), "", "throttled", nil, nil)
	assert.ErrorIs(t, err, entity.ErrTransientProvider)

	err = c.CallRPC(context.Background(), "", "unknown", nil, nil)
	assert.ErrorIs(t, err, entity.ErrPermanentProvider)
}

func TestRedactMasksSecret(t *testing.T) {
	c := New(Options{Provider: "p", BaseURL: "https://eth-mainnet.g.alchemy.com/v2/abc123", Secret: "abc123"}, zap.NewNop())
	assert.Equal(t, "https://eth-mainnet.g.alchemy.com/v2/***", c.redact(c.BaseURL()))
}

func TestIsTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped unexpected eof", err: fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), want: true},
		{name: "fasthttp timeout", err: fasthttp.ErrTimeout, want: true},
		{name: "connection reset text", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "text mentioning eof", err: errors.New("unexpected token near geoffrey"), want: false},
		{name: "plain error", err: errors.New("bad certificate"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransportError(tt.err))
		})
	}
}

func TestDo_AdmitsEveryRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	var admitted int
	c := New(Options{
		Provider: "test",
		BaseURL:  srv.URL,
		Timeout:  time.Second,
		Admit: func(context.Context) error {
			admitted++
			return nil
		},
	}, zap.NewNop())
	require.True(t, c.AdmitsPerRequest())

	for i := 0; i < 3; i++ {
		require.NoError(t, c.GetJSON(context.Background(), "/x", nil, nil))
	}
	require.NoError(t, c.PostJSON(context.Background(), "/y", map[string]int{"a": 1}, nil))
	assert.Equal(t, 4, admitted)
}

func TestDo_AdmissionFailureSkipsRequest(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	denied := errors.New("budget exhausted")
	c := New(Options{
		Provider: "test",
		BaseURL:  srv.URL,
		Admit:    func(context.Context) error { return denied },
	}, zap.NewNop())

	err := c.GetJSON(context.Background(), "/x", nil, nil)
	assert.ErrorIs(t, err, denied)
	assert.Zero(t, hits)
}
