package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/classifier"
	"github.com/nagaralert/nagaralert/internal/composer"
	"github.com/nagaralert/nagaralert/internal/config"
	"github.com/nagaralert/nagaralert/internal/intake"
	"github.com/nagaralert/nagaralert/internal/report"
	"github.com/nagaralert/nagaralert/internal/store"
)

type stubProvider struct {
	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func (s *stubProvider) Tag() channel.ProviderTag { return channel.ProviderWhapi }
func (s *stubProvider) Match(payload []byte) bool {
	return strings.Contains(string(payload), `"messages"`)
}
func (s *stubProvider) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	return []channel.InboundMessage{{
		SenderID: "777",
		ReplyTo:  "777@s.whatsapp.net",
		Channel:  channel.ProviderWhapi,
		Kind:     channel.KindText,
		Body:     "hello",
	}}, nil
}
func (s *stubProvider) SendText(_ context.Context, to, body string) error {
	s.mu.Lock()
	s.sent = append(s.sent, to+"|"+body)
	s.mu.Unlock()
	select {
	case s.done <- struct{}{}:
	default:
	}
	return nil
}

type stubClassifier struct{}

func (stubClassifier) ClassifyMedia(context.Context, []byte, string) classifier.Verdict {
	return classifier.Verdict{IsReal: true}
}
func (stubClassifier) ClassifyText(context.Context, string) classifier.Verdict {
	return classifier.Verdict{IsReal: true}
}

type stubComposer struct{}

func (stubComposer) Compose(_ context.Context, rc composer.Context) string {
	return "reply:" + string(rc.Kind)
}

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, channel.ProviderTag, string) []byte { return nil }

func newWebhookFixture(t *testing.T) (*echo.Echo, *stubProvider) {
	t.Helper()
	log := slog.Default()
	provider := &stubProvider{done: make(chan struct{}, 1)}
	registry := channel.NewRegistry()
	registry.Register(provider)
	reports := report.NewService(log, store.NewMemory(), 0)
	svc := intake.NewService(log, config.IntakeConfig{}, reports, registry, stubFetcher{}, nil, stubClassifier{}, stubComposer{}, nil, nil)
	h := NewWebhookHandler(log, registry, svc, "secret-token")
	e := echo.New()
	h.Register(e)
	return e, provider
}

func TestReceive_AcksAndProcesses(t *testing.T) {
	t.Parallel()
	e, provider := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"messages":[{}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	// Processing happens off the request path; the chat reply proves the
	// batch went through the state machine.
	select {
	case <-provider.done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch never processed")
	}
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.sent) != 1 || !strings.HasPrefix(provider.sent[0], "777@s.whatsapp.net|") {
		t.Fatalf("sent = %v", provider.sent)
	}
}

func TestReceive_UnknownPayloadStillAcks(t *testing.T) {
	t.Parallel()
	e, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"something":"else"}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestReceive_GarbageBodyStillAcks(t *testing.T) {
	t.Parallel()
	e, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json at all"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestVerify_Handshake(t *testing.T) {
	t.Parallel()
	e, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestVerify_BadToken(t *testing.T) {
	t.Parallel()
	e, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d", rec.Code)
	}
}
