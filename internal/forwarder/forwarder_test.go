package forwarder_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hookfreight/hookfreight/internal/forwarder"
	"github.com/hookfreight/hookfreight/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDeliverClassifies2xxAsDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := forwarder.New()
	res := f.Deliver(context.Background(), "POST", srv.URL, nil, []byte("payload"), time.Second)

	require.Equal(t, models.DeliveryStatusDelivered, res.Status)
	require.False(t, res.Retryable)
	require.NotNil(t, res.ResponseStatus)
	require.Equal(t, 200, *res.ResponseStatus)
}

func TestDeliverClassifies4xxAsNonRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	f := forwarder.New()
	res := f.Deliver(context.Background(), "POST", srv.URL, nil, nil, time.Second)

	require.Equal(t, models.DeliveryStatusFailed, res.Status)
	require.False(t, res.Retryable)
	require.Equal(t, 400, *res.ResponseStatus)
}

func TestDeliverClassifies5xxAsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := forwarder.New()
	res := f.Deliver(context.Background(), "POST", srv.URL, nil, nil, time.Second)

	require.Equal(t, models.DeliveryStatusFailed, res.Status)
	require.True(t, res.Retryable)
	require.Equal(t, 500, *res.ResponseStatus)
}

func TestDeliverClassifiesTimeoutAsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := forwarder.New()
	res := f.Deliver(context.Background(), "POST", srv.URL, nil, nil, 20*time.Millisecond)

	require.Equal(t, models.DeliveryStatusTimeout, res.Status)
	require.True(t, res.Retryable)
}

func TestDeliverClassifiesTransportErrorAsRetryable(t *testing.T) {
	f := forwarder.New()
	res := f.Deliver(context.Background(), "POST", "http://127.0.0.1:1", nil, nil, time.Second)

	require.Equal(t, models.DeliveryStatusFailed, res.Status)
	require.True(t, res.Retryable)
	require.NotEmpty(t, res.ErrorMessage)
}
