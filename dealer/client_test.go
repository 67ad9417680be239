package dealer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, EndpointLogin, r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Voltmx-App-Key"))
		assert.Equal(t, "secret", r.Header.Get("X-Voltmx-App-Secret"))
		assert.Equal(t, "DEV-1", r.Header.Get("X-Voltmx-DeviceId"))
		w.Write([]byte(`{"claims_token":{"value":"tok123"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "DEV-1", WithCredentials("key", "secret"))
	sess, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	require.True(t, sess.Valid())
	assert.Equal(t, "tok123", sess.Token)
	assert.False(t, sess.IssuedAt.IsZero())
}

func TestAuthenticateMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "DEV-1")
	_, err := c.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAuth)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ZZ99", r.PostForm.Get("deviceId"))
		assert.Equal(t, "tok123", r.Header.Get("X-Voltmx-Authorization"))
		w.Write([]byte(`{"status":"SUCCESS"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "DEV-1")
	sess := &Session{Token: "tok123"}
	body, err := c.Call(context.Background(), EndpointSATRefresh, url.Values{"deviceId": []string{"ZZ99"}}, sess)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"SUCCESS"}`, string(body))
}

func TestCallAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "DEV-1")
	_, err := c.Call(context.Background(), EndpointGetProperties, url.Values{}, &Session{Token: "stale"})
	require.ErrorIs(t, err, ErrAuth)
	require.False(t, errors.Is(err, ErrTransport))
}

func TestCallTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "DEV-1")
	_, err := c.Call(context.Background(), EndpointGetProperties, url.Values{}, &Session{Token: "tok"})
	require.ErrorIs(t, err, ErrTransport)

	// connection-level failure
	srv.Close()
	_, err = c.Call(context.Background(), EndpointGetProperties, url.Values{}, &Session{Token: "tok"})
	require.ErrorIs(t, err, ErrTransport)
}

func TestCallAbsoluteEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/program_status.php", r.URL.Path)
		assert.Equal(t, "395 EASTERN BLVD", r.URL.Query().Get("google_addr"))
		w.Write([]byte(`{"status":"SUCCESS"}`))
	}))
	defer srv.Close()

	c := New("https://unused.example.com", "DEV-1")
	oracle := srv.URL + "/program_status.php?google_addr=" + url.QueryEscape("395 EASTERN BLVD")
	_, err := c.Call(context.Background(), oracle, url.Values{}, &Session{Token: "tok"})
	require.NoError(t, err)
}
