package whapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/config"
)

func newTestAdapter(baseURL string) *Adapter {
	return New(nil, config.WhapiConfig{BaseURL: baseURL, Token: "test-token"})
}

func TestMatch(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	if !a.Match([]byte(`{"messages":[]}`)) {
		t.Fatal("flat envelope not matched")
	}
	if a.Match([]byte(`{"object":"whatsapp_business_account","entry":[]}`)) {
		t.Fatal("nested envelope wrongly matched")
	}
	if a.Match([]byte(`not json`)) {
		t.Fatal("garbage matched")
	}
}

func TestNormalize_TextAndSenderStripping(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	payload := []byte(`{"messages":[
		{"from_me":false,"chat_id":"9991112222@s.whatsapp.net","type":"text","text":{"body":"hello"}}
	]}`)
	msgs, err := a.Normalize(payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d", len(msgs))
	}
	m := msgs[0]
	if m.Kind != channel.KindText || m.Body != "hello" {
		t.Fatalf("msg = %+v", m)
	}
	if m.SenderID != "9991112222" {
		t.Fatalf("sender = %q", m.SenderID)
	}
	if m.ReplyTo != "9991112222@s.whatsapp.net" {
		t.Fatalf("replyTo = %q", m.ReplyTo)
	}
}

func TestNormalize_SkipsOwnEchoes(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	payload := []byte(`{"messages":[
		{"from_me":true,"chat_id":"111@s.whatsapp.net","type":"text","text":{"body":"our reply"}},
		{"from_me":false,"chat_id":"111@s.whatsapp.net","type":"text","text":{"body":"theirs"}}
	]}`)
	msgs, err := a.Normalize(payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "theirs" {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestNormalize_MediaKinds(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	cases := []struct {
		name     string
		payload  string
		kind     channel.MediaKind
		ref      string
		mime     string
	}{
		{
			name:    "image link",
			payload: `{"messages":[{"from":"111","type":"image","image":{"link":"https://cdn/img.jpg","mime_type":"image/jpeg"}}]}`,
			kind:    channel.MediaImage,
			ref:     "https://cdn/img.jpg",
			mime:    "image/jpeg",
		},
		{
			name:    "video url fallback",
			payload: `{"messages":[{"from":"111","type":"video","video":{"url":"https://cdn/v.mp4"}}]}`,
			kind:    channel.MediaVideo,
			ref:     "https://cdn/v.mp4",
			mime:    "video/mp4",
		},
		{
			name:    "voice note as audio",
			payload: `{"messages":[{"from":"111","type":"voice","voice":{"link":"https://cdn/note.ogg"}}]}`,
			kind:    channel.MediaAudio,
			ref:     "https://cdn/note.ogg",
			mime:    "audio/ogg",
		},
		{
			name:    "voice note keeps its own mime",
			payload: `{"messages":[{"from":"111","type":"voice","voice":{"link":"https://cdn/note.opus","mime_type":"audio/ogg; codecs=opus"}}]}`,
			kind:    channel.MediaAudio,
			ref:     "https://cdn/note.opus",
			mime:    "audio/ogg; codecs=opus",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			msgs, err := a.Normalize([]byte(tc.payload))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if len(msgs) != 1 {
				t.Fatalf("messages = %d", len(msgs))
			}
			m := msgs[0]
			if m.Kind != channel.KindMedia || m.MediaKind != tc.kind {
				t.Fatalf("kind = %s/%s", m.Kind, m.MediaKind)
			}
			if m.MediaRef != tc.ref || m.Mime != tc.mime {
				t.Fatalf("ref=%q mime=%q", m.MediaRef, m.Mime)
			}
		})
	}
}

func TestNormalize_LocationAndUnsupported(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	payload := []byte(`{"messages":[
		{"from":"111","type":"location","location":{"latitude":23.36,"longitude":85.33,"name":"Ranchi"}},
		{"from":"111","type":"sticker"}
	]}`)
	msgs, err := a.Normalize(payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d", len(msgs))
	}
	loc := msgs[0]
	if loc.Kind != channel.KindLocation || loc.Coordinates == nil {
		t.Fatalf("location msg = %+v", loc)
	}
	if loc.Coordinates.Address != "Ranchi" || loc.Coordinates.Lat != 23.36 {
		t.Fatalf("coordinates = %+v", loc.Coordinates)
	}
	if msgs[1].Kind != channel.KindUnsupported {
		t.Fatalf("sticker kind = %s", msgs[1].Kind)
	}
}

func TestNormalize_MalformedEnvelope(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	if _, err := a.Normalize([]byte(`{"messages":`)); err == nil {
		t.Fatal("want error for truncated payload")
	}
}

func TestSendText(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/text" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	if err := a.SendText(context.Background(), "111@s.whatsapp.net", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["to"] != "111@s.whatsapp.net" || gotBody["body"] != "hello" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestSendText_GatewayError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	if err := a.SendText(context.Background(), "111", "hello"); err == nil {
		t.Fatal("want error on 502")
	}
}
