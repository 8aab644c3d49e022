package forward

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestForwardSendsBodyUnmodified(t *testing.T) {
	body := []byte(`{"TransID":"QK1",  "BillRefNumber":"ABC12345","TransAmount":"10.00"}`)
	got := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- b
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	f := New(time.Second, zap.NewNop())
	require.NoError(t, f.Forward(context.Background(), srv.URL, body))
	assert.Equal(t, body, <-got)
}

func TestForwardNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(time.Second, zap.NewNop()).Forward(context.Background(), srv.URL, []byte(`{}`))
	assert.ErrorContains(t, err, "status 500")
}

func TestForwardTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := New(50*time.Millisecond, zap.NewNop()).Forward(context.Background(), srv.URL, []byte(`{}`))
	assert.Error(t, err)
}
