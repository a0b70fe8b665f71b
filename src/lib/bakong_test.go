package lib

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cshop/src/types"

	"github.com/stretchr/testify/assert"
)

func newTestBakong(handler http.HandlerFunc) (*BakongClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := &BakongClient{
		BaseURL:    srv.URL,
		Token:      "test-token",
		HTTPClient: srv.Client(),
	}
	return client, srv
}

func TestCheckPaymentPaid(t *testing.T) {
	client, srv := newTestBakong(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/check_transaction_by_md5", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"responseCode":0,"responseMessage":"Success","data":{"hash":"abc123","amount":150.75,"currency":"USD"}}`))
	})
	defer srv.Close()

	status, err := client.CheckPayment(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.NoError(t, err)
	assert.Equal(t, types.ACQUIRER_PAID, status)
}

func TestCheckPaymentUnknownHashIsUnpaid(t *testing.T) {
	client, srv := newTestBakong(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"responseCode":1,"responseMessage":"Transaction could not be found","errorCode":11}`))
	})
	defer srv.Close()

	status, err := client.CheckPayment(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.NoError(t, err)
	assert.Equal(t, types.ACQUIRER_UNPAID, status)
}

func TestCheckPaymentServerErrorIsError(t *testing.T) {
	client, srv := newTestBakong(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := client.CheckPayment(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.Error(t, err)
}

func TestCheckPaymentRespectsContextDeadline(t *testing.T) {
	client, srv := newTestBakong(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"responseCode":0,"data":{"hash":"abc"}}`))
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.CheckPayment(ctx, "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.Error(t, err)
}

func TestCheckPaymentInvalidBody(t *testing.T) {
	client, srv := newTestBakong(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway error</html>`))
	})
	defer srv.Close()

	_, err := client.CheckPayment(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	assert.Error(t, err)
}
