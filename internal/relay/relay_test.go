package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/notify/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg transport.Message) (transport.Result, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(transport.Result), args.Error(1)
}

func newTestRouter(t *testing.T, sender Sender) http.Handler {
	t.Helper()
	return NewRouter(Options{
		Sender:      sender,
		SendTimeout: time.Second,
		Logger:      logger.NewTestLogger(t),
	})
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, transport.Result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res transport.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return rec, res
}

func TestSendEmail_Success(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, transport.Message{
		To:      "ann@x.com",
		Subject: "Application approved",
		Text:    "Dear Ann",
	}).Return(transport.Result{Success: true, MessageID: "<m1@x.com>"}, nil)

	rec, res := post(t, newTestRouter(t, sender), `{"to":"ann@x.com","subject":"Application approved","text":"Dear Ann"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Success)
	assert.Equal(t, "<m1@x.com>", res.MessageID)
	sender.AssertExpectations(t)
}

func TestSendEmail_Failures(t *testing.T) {
	tests := []struct {
		name      string
		result    transport.Result
		err       error
		wantError string
	}{
		{name: "refused by server", result: transport.Result{Error: "535 auth failed"}, wantError: "535 auth failed"},
		{name: "refused without reason", result: transport.Result{}, wantError: "send not accepted"},
		{name: "transport error", err: errors.New("smtp send: context deadline exceeded"), wantError: "smtp send: context deadline exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := new(MockSender)
			sender.On("Send", mock.Anything, mock.Anything).Return(tt.result, tt.err)

			rec, res := post(t, newTestRouter(t, sender), `{"to":"ann@x.com","subject":"s","text":"t"}`)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantError, res.Error)
		})
	}
}

func TestSendEmail_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `to=ann`},
		{name: "missing subject", body: `{"to":"ann@x.com","text":"t"}`},
		{name: "bad recipient", body: `{"to":"ann","subject":"s"}`},
		{name: "numeric text", body: `{"to":"ann@x.com","subject":"s","text":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := new(MockSender)

			rec, res := post(t, newTestRouter(t, sender), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
			sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestSendEmail_SanitizesHTML(t *testing.T) {
	sender := new(MockSender)
	var sent transport.Message
	sender.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(transport.Message) }).
		Return(transport.Result{Success: true, MessageID: "<m@x>"}, nil)

	body := `{"to":"ann@x.com","subject":"s","html":"<p>Hello &amp; welcome</p><script>alert(1)</script><p>Team</p>"}`
	rec, _ := post(t, newTestRouter(t, sender), body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, sent.HTML, "<script>")
	assert.Contains(t, sent.HTML, "<p>Hello &amp; welcome</p>")
	assert.Equal(t, "Hello & welcome\nTeam", sent.Text)
}

func TestHealthAndCORS(t *testing.T) {
	h := NewRouter(Options{Sender: new(MockSender), AllowedOrigins: []string{"https://forms.example.com"}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	req := httptest.NewRequest(http.MethodOptions, "/send-email", nil)
	req.Header.Set("Origin", "https://forms.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://forms.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
