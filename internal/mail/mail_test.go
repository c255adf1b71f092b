package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestNotifierSendDigest(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sender := &fakeSender{}
		n := NewNotifier(sender, testLogger(io.Discard))

		ok := n.SendDigest(context.Background(), "a@example.com", "<p>hi</p>")

		assert.True(t, ok)
		require.Len(t, sender.sent, 1)
		assert.Equal(t, "a@example.com", sender.sent[0].To)
		assert.Equal(t, DigestSubject, sender.sent[0].Subject)
		assert.Equal(t, "<p>hi</p>", sender.sent[0].HTMLBody)
		assert.NotEmpty(t, sender.sent[0].TextBody)
	})

	t.Run("failure is logged not returned", func(t *testing.T) {
		var logs bytes.Buffer
		n := NewNotifier(&fakeSender{err: errors.New("smtp down")}, testLogger(&logs))

		ok := n.SendDigest(context.Background(), "b@example.com", "<p>hi</p>")

		assert.False(t, ok)
		assert.Contains(t, logs.String(), "b@example.com")
		assert.Contains(t, logs.String(), "smtp down")
	})
}

func TestNewSender(t *testing.T) {
	logger := testLogger(io.Discard)

	s, err := NewSender(Config{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = NewSender(Config{Provider: ProviderSendGrid, SendGridKey: "k", From: "Panchang <noreply@example.com>"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SendGridSender{}, s)

	_, err = NewSender(Config{Provider: ProviderSendGrid, From: "noreply@example.com"}, logger)
	assert.Error(t, err, "missing api key")

	_, err = NewSender(Config{Provider: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	var logs bytes.Buffer
	s := NewLogSender(testLogger(&logs))

	err := s.Send(context.Background(), Message{To: "c@example.com", Subject: DigestSubject, HTMLBody: "<p/>"})

	require.NoError(t, err)
	assert.Contains(t, logs.String(), "c@example.com")
}

func TestSendGridSender(t *testing.T) {
	type captured struct {
		path, auth string
		body       map[string]any
	}

	newServer := func(t *testing.T, status int, got *captured) string {
		t.Helper()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got.path = r.URL.Path
			got.auth = r.Header.Get("Authorization")
			json.NewDecoder(r.Body).Decode(&got.body)
			w.WriteHeader(status)
		}))
		t.Cleanup(srv.Close)
		return srv.URL
	}

	t.Run("accepted", func(t *testing.T) {
		var got captured
		host := newServer(t, http.StatusAccepted, &got)
		s, err := NewSendGridSender("sg-key", "Panchang <noreply@example.com>", host)
		require.NoError(t, err)

		err = s.Send(context.Background(), Message{
			To: "d@example.com", Subject: DigestSubject, HTMLBody: "<h2>Mumbai</h2>", TextBody: "text",
		})
		require.NoError(t, err)

		assert.Equal(t, sendEndpoint, got.path)
		assert.Equal(t, "Bearer sg-key", got.auth)
		assert.Equal(t, DigestSubject, got.body["subject"])
		raw, _ := json.Marshal(got.body)
		assert.True(t, strings.Contains(string(raw), "d@example.com"), "recipient missing from %s", raw)
	})

	t.Run("error status", func(t *testing.T) {
		var got captured
		host := newServer(t, http.StatusUnauthorized, &got)
		s, err := NewSendGridSender("bad-key", "noreply@example.com", host)
		require.NoError(t, err)

		err = s.Send(context.Background(), Message{To: "d@example.com", Subject: DigestSubject, HTMLBody: "x", TextBody: "x"})
		assert.ErrorIs(t, err, ErrSend)
	})

	t.Run("bad recipient", func(t *testing.T) {
		s, err := NewSendGridSender("k", "noreply@example.com", "http://127.0.0.1:0")
		require.NoError(t, err)

		err = s.Send(context.Background(), Message{To: "not an address"})
		assert.ErrorIs(t, err, ErrSend)
	})
}
