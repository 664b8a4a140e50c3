package media

import (
	"context"
	"io"
	"strings"
)

// Blobs abstracts the object store that holds report media. The backend is
// out of scope; the service needs only "store bytes, hand back a public URL".
type Blobs interface {
	// Put writes data under key and returns nothing; PublicURL resolves the
	// browsable location.
	Put(ctx context.Context, key string, reader io.Reader) error
	// PublicURL returns the public location for a stored key.
	PublicURL(key string) string
}

// ExtensionFromMime derives a file extension from a mime type
// ("image/jpeg" -> ".jpeg"). Unknown shapes fall back to ".bin".
func ExtensionFromMime(mime string) string {
	idx := strings.IndexByte(mime, '/')
	if idx < 0 || idx == len(mime)-1 {
		return ".bin"
	}
	sub := mime[idx+1:]
	if semi := strings.IndexByte(sub, ';'); semi >= 0 {
		sub = sub[:semi]
	}
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return ".bin"
	}
	return "." + sub
}
