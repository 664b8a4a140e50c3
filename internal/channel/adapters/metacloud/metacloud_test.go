package metacloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/config"
)

const sampleEnvelope = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"changes": [{
			"value": {
				"messages": [
					{"from":"9991112222","type":"text","text":{"body":"hi"}},
					{"from":"9991112222","type":"image","image":{"id":"media-123","mime_type":"image/png"}},
					{"from":"9991112222","type":"location","location":{"latitude":23.36,"longitude":85.33,"address":"Kanke Road"}}
				]
			}
		}]
	}]
}`

func newTestAdapter(graphURL string) *Adapter {
	return New(nil, config.MetaConfig{
		GraphBaseURL:  graphURL,
		Token:         "meta-token",
		PhoneNumberID: "555000",
	})
}

func TestMatch(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	if !a.Match([]byte(sampleEnvelope)) {
		t.Fatal("business envelope not matched")
	}
	if a.Match([]byte(`{"messages":[]}`)) {
		t.Fatal("flat envelope wrongly matched")
	}
	if a.Match([]byte(`{"object":"page"}`)) {
		t.Fatal("other object matched")
	}
}

func TestNormalize_WalksNesting(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	msgs, err := a.Normalize([]byte(sampleEnvelope))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d", len(msgs))
	}

	text := msgs[0]
	if text.Kind != channel.KindText || text.Body != "hi" || text.SenderID != "9991112222" {
		t.Fatalf("text = %+v", text)
	}

	img := msgs[1]
	if img.Kind != channel.KindMedia || img.MediaKind != channel.MediaImage {
		t.Fatalf("image = %+v", img)
	}
	// Meta references media by provider-internal id, not URL.
	if img.MediaRef != "media-123" || img.Mime != "image/png" {
		t.Fatalf("image ref = %q mime = %q", img.MediaRef, img.Mime)
	}

	loc := msgs[2]
	if loc.Kind != channel.KindLocation || loc.Coordinates == nil {
		t.Fatalf("location = %+v", loc)
	}
	if loc.Coordinates.Address != "Kanke Road" {
		t.Fatalf("address = %q", loc.Coordinates.Address)
	}
}

func TestNormalize_WrongObject(t *testing.T) {
	t.Parallel()
	a := newTestAdapter("")

	if _, err := a.Normalize([]byte(`{"object":"page","entry":[]}`)); err == nil {
		t.Fatal("want error for non-whatsapp object")
	}
}

func TestSendText_GraphShape(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	if err := a.SendText(context.Background(), "9991112222", "namaste"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/555000/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer meta-token" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["messaging_product"] != "whatsapp" || gotBody["to"] != "9991112222" {
		t.Fatalf("body = %v", gotBody)
	}
	text, ok := gotBody["text"].(map[string]any)
	if !ok || text["body"] != "namaste" {
		t.Fatalf("text = %v", gotBody["text"])
	}
}
