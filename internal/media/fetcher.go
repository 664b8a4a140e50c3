// Package media acquires report media bytes from the chat gateways and hands
// persisted copies to the blob store for a stable public URL.
package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nagaralert/nagaralert/internal/channel"
	"github.com/nagaralert/nagaralert/internal/config"
)

// MaxMediaBytes caps a single download. Gateways reject larger uploads well
// before this point.
const MaxMediaBytes int64 = 64 << 20

// publicTestHosts are placeholder image services used in demos; they reject
// unexpected Authorization headers, so the bearer credential is withheld.
var publicTestHosts = []string{"placehold.co", "via.placeholder.com"}

// Fetcher downloads media referenced by inbound messages. Every failure path
// returns nil bytes rather than an error: the intake flow treats missing
// media as "pending", never as a reason to abort the conversation.
type Fetcher struct {
	logger     *slog.Logger
	client     *http.Client
	whapiToken string
	graphURL   string
	metaToken  string
}

// NewFetcher creates a fetcher with the fixed per-call timeout from config.
func NewFetcher(log *slog.Logger, whapi config.WhapiConfig, meta config.MetaConfig, mediaCfg config.MediaConfig) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(mediaCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		logger:     log.With(slog.String("service", "media")),
		client:     &http.Client{Timeout: timeout},
		whapiToken: whapi.Token,
		graphURL:   strings.TrimRight(meta.GraphBaseURL, "/"),
		metaToken:  meta.Token,
	}
}

// Fetch resolves a media reference to raw bytes. The reference is interpreted
// per provider: inline data URI, direct URL (whapi), or media id (metacloud).
// Returns nil on any unrecoverable failure.
func (f *Fetcher) Fetch(ctx context.Context, provider channel.ProviderTag, ref string) []byte {
	if ref == "" {
		return nil
	}
	if strings.HasPrefix(ref, "data:") {
		return decodeInline(ref)
	}
	switch provider {
	case channel.ProviderMeta:
		return f.fetchGraphMedia(ctx, ref)
	default:
		return f.fetchURL(ctx, ref)
	}
}

func decodeInline(ref string) []byte {
	idx := strings.IndexByte(ref, ',')
	if idx < 0 {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(ref[idx+1:])
	if err != nil {
		return nil
	}
	return data
}

// fetchURL downloads a direct URL with the bearer credential attached, then
// retries exactly once without it. Pre-signed URLs reject extra auth headers.
func (f *Fetcher) fetchURL(ctx context.Context, url string) []byte {
	token := f.whapiToken
	if isPublicTestURL(url) {
		token = ""
	}
	data, err := f.download(ctx, url, token)
	if err == nil {
		return data
	}
	if token != "" {
		f.logger.Warn("authenticated download failed, retrying plain", slog.String("url", url), slog.Any("error", err))
		if data, err = f.download(ctx, url, ""); err == nil {
			return data
		}
	}
	f.logger.Error("media download failed", slog.String("url", url), slog.Any("error", err))
	return nil
}

// fetchGraphMedia resolves a provider-internal media id to a direct URL via
// an authenticated metadata call, then downloads with the same credential.
func (f *Fetcher) fetchGraphMedia(ctx context.Context, mediaID string) []byte {
	if f.metaToken == "" {
		return nil
	}
	metaBytes, err := f.download(ctx, f.graphURL+"/"+mediaID, f.metaToken)
	if err != nil {
		f.logger.Error("media metadata lookup failed", slog.String("media_id", mediaID), slog.Any("error", err))
		return nil
	}
	var meta struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(metaBytes, &meta); err != nil || meta.URL == "" {
		f.logger.Error("media metadata malformed", slog.String("media_id", mediaID))
		return nil
	}
	data, err := f.download(ctx, meta.URL, f.metaToken)
	if err != nil {
		f.logger.Error("media download failed", slog.String("media_id", mediaID), slog.Any("error", err))
		return nil
	}
	return data
}

func (f *Fetcher) download(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func isPublicTestURL(url string) bool {
	for _, host := range publicTestHosts {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}
