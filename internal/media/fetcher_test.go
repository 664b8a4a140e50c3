package media

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/config"
)

func newTestFetcher(whapiToken, graphURL, metaToken string) *Fetcher {
	return NewFetcher(nil,
		config.WhapiConfig{Token: whapiToken},
		config.MetaConfig{GraphBaseURL: graphURL, Token: metaToken},
		config.MediaConfig{TimeoutSeconds: 2},
	)
}

func TestFetch_EmptyRef(t *testing.T) {
	t.Parallel()
	f := newTestFetcher("tok", "", "")

	if got := f.Fetch(context.Background(), channel.ProviderWhapi, ""); got != nil {
		t.Fatalf("got %q for empty ref", got)
	}
}

func TestFetch_InlineDataURI(t *testing.T) {
	t.Parallel()
	f := newTestFetcher("", "", "")

	got := f.Fetch(context.Background(), channel.ProviderWhapi, "data:image/png;base64,aGVsbG8=")
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("decoded = %q", got)
	}
	if got := f.Fetch(context.Background(), channel.ProviderWhapi, "data:garbage"); got != nil {
		t.Fatalf("malformed data uri returned %q", got)
	}
}

func TestFetch_DirectURLWithBearer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer whapi-tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher("whapi-tok", "", "")
	got := f.Fetch(context.Background(), channel.ProviderWhapi, srv.URL+"/m.jpg")
	if !bytes.Equal(got, []byte("image-bytes")) {
		t.Fatalf("got %q", got)
	}
}

func TestFetch_RetriesOnceWithoutToken(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Pre-signed URL behavior: any Authorization header is rejected.
		if r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("presigned-bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher("whapi-tok", "", "")
	got := f.Fetch(context.Background(), channel.ProviderWhapi, srv.URL+"/m.jpg")
	if !bytes.Equal(got, []byte("presigned-bytes")) {
		t.Fatalf("got %q", got)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want authenticated try then plain retry", calls)
	}
}

func TestFetch_FailureReturnsNil(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher("tok", "", "")
	if got := f.Fetch(context.Background(), channel.ProviderWhapi, srv.URL+"/gone.jpg"); got != nil {
		t.Fatalf("got %q, want nil", got)
	}
}

func TestFetch_GraphMediaResolvesID(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/media-123", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer meta-tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": srv.URL + "/blob"})
	})
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer meta-tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("graph-bytes"))
	})

	f := newTestFetcher("", srv.URL, "meta-tok")
	got := f.Fetch(context.Background(), channel.ProviderMeta, "media-123")
	if !bytes.Equal(got, []byte("graph-bytes")) {
		t.Fatalf("got %q", got)
	}
}

func TestFetch_GraphMediaWithoutToken(t *testing.T) {
	t.Parallel()

	f := newTestFetcher("", "http://127.0.0.1:1", "")
	if got := f.Fetch(context.Background(), channel.ProviderMeta, "media-123"); got != nil {
		t.Fatalf("got %q without token", got)
	}
}

func TestExtensionFromMime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mime string
		want string
	}{
		{mime: "image/jpeg", want: ".jpeg"},
		{mime: "video/mp4", want: ".mp4"},
		{mime: "audio/ogg; codecs=opus", want: ".ogg"},
		{mime: "weird", want: ".bin"},
		{mime: "", want: ".bin"},
		{mime: "image/", want: ".bin"},
	}
	for _, tc := range cases {
		if got := ExtensionFromMime(tc.mime); got != tc.want {
			t.Fatalf("ExtensionFromMime(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}
