package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pstu-cpl/cpl/internal/remote"
)

// signedURLTTL is how long a signed avatar URL stays valid.
const signedURLTTL = time.Hour

// SessionSource reports the authenticated remote session.
type SessionSource interface {
	GetSession(ctx context.Context) (*remote.Session, error)
}

// BlobStore stores avatar images and resolves their URLs.
type BlobStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string, upsert bool) (string, error)
	PublicURL(bucket, key string) string
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ImageData is a decoded inline image payload.
type ImageData struct {
	ContentType string
	Data        []byte
}

// IsImageData reports whether payload looks like an inline image.
func IsImageData(payload string) bool {
	return strings.HasPrefix(strings.TrimSpace(payload), "data:image/")
}

// ParseImageData decodes a base64 "data:image/...;base64,..." payload.
func ParseImageData(payload string) (ImageData, error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, "data:") {
		return ImageData{}, ErrInvalidImageData
	}

	header, encoded, ok := strings.Cut(payload[len("data:"):], ",")
	if !ok {
		return ImageData{}, ErrInvalidImageData
	}

	mediaType, params, found := strings.Cut(header, ";")
	if !found || !strings.Contains(params, "base64") {
		return ImageData{}, ErrInvalidImageData
	}
	contentType, _, err := mime.ParseMediaType(mediaType)
	if err != nil || !strings.HasPrefix(contentType, "image/") {
		return ImageData{}, ErrInvalidImageData
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return ImageData{}, fmt.Errorf("%w: %w", ErrInvalidImageData, err)
		}
	}
	if len(data) == 0 {
		return ImageData{}, ErrInvalidImageData
	}

	return ImageData{ContentType: contentType, Data: data}, nil
}

// Extension returns the file extension for the image type.
func (d ImageData) Extension() string {
	sub := strings.TrimPrefix(d.ContentType, "image/")
	switch sub {
	case "jpeg", "pjpeg":
		return "jpg"
	case "svg+xml":
		return "svg"
	case "x-icon", "vnd.microsoft.icon":
		return "ico"
	}
	sub, _, _ = strings.Cut(sub, "+")
	if sub == "" {
		return "img"
	}
	return sub
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// objectID returns a time-ordered id that is unique within the process.
func objectID(t time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// AvatarUploader turns inline image data into a stored blob and resolves a
// retrievable URL for it.
type AvatarUploader struct {
	sessions SessionSource
	blobs    BlobStore
	bucket   string
	public   bool
	now      func() time.Time
}

// NewAvatarUploader creates an AvatarUploader writing to bucket. When
// public is false URLs are signed.
func NewAvatarUploader(sessions SessionSource, blobs BlobStore, bucket string, public bool) *AvatarUploader {
	return &AvatarUploader{
		sessions: sessions,
		blobs:    blobs,
		bucket:   bucket,
		public:   public,
		now:      time.Now,
	}
}

// Upload stores payload for accountID and returns its URL. It fails only
// for payloads that are not inline image data; every other failure is
// logged and reported as an empty URL.
func (u *AvatarUploader) Upload(ctx context.Context, accountID, payload string) (string, error) {
	img, err := ParseImageData(payload)
	if err != nil {
		return "", err
	}

	s, err := u.sessions.GetSession(ctx)
	if err != nil || s == nil {
		slog.Warn("auth: avatar upload needs an authenticated session", "accountId", accountID, "error", err)
		return "", nil
	}
	owner := accountID
	if s.User.ID != "" && s.User.ID != accountID {
		slog.Warn("auth: avatar upload target differs from authenticated identity; using authenticated identity",
			"requested", accountID,
			"authenticated", s.User.ID,
		)
		owner = s.User.ID
	}

	key := fmt.Sprintf("%s/%s.%s", owner, objectID(u.now()), img.Extension())
	if _, err := u.blobs.Upload(ctx, u.bucket, key, img.Data, img.ContentType, true); err != nil {
		slog.Warn("auth: avatar upload failed", "accountId", owner, "key", key, "error", err)
		return "", nil
	}

	if u.public {
		if url := u.blobs.PublicURL(u.bucket, key); url != "" {
			return url, nil
		}
	}

	url, err := u.blobs.SignedURL(ctx, u.bucket, key, signedURLTTL)
	if err != nil {
		slog.Warn("auth: resolving signed avatar url failed", "key", key, "error", err)
		return "", nil
	}
	return url, nil
}
