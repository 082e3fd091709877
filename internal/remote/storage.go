package remote

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Upload stores data at key in bucket and returns the stored object key.
// With upsert an existing object at key is overwritten.
func (c *Client) Upload(ctx context.Context, bucket, key string, data []byte, contentType string, upsert bool) (string, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return "", err
	}

	var resp struct {
		Key string `json:"Key"`
	}
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + joinPath(bucket, key),
		raw:         data,
		contentType: contentType,
		token:       token,
		header: http.Header{
			"x-upsert":      {strconv.FormatBool(upsert)},
			"cache-control": {"max-age=3600"},
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, key, err)
	}

	if resp.Key == "" {
		resp.Key = bucket + "/" + key
	}
	return resp.Key, nil
}

// PublicURL returns the address of key in a public bucket. No request is
// made; the URL only resolves when the bucket is public.
func (c *Client) PublicURL(bucket, key string) string {
	if bucket == "" || key == "" {
		return ""
	}
	return c.baseURL + "/storage/v1/object/public/" + joinPath(bucket, key)
}

// SignedURL returns a time-limited address of key.
func (c *Client) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return "", err
	}

	var resp struct {
		SignedURL string `json:"signedURL"`
	}
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/storage/v1/object/sign/" + joinPath(bucket, key),
		body:   map[string]int64{"expiresIn": int64(ttl / time.Second)},
		token:  token,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("signing %s/%s: %w", bucket, key, err)
	}
	if resp.SignedURL == "" {
		return "", fmt.Errorf("signing %s/%s: empty signed url", bucket, key)
	}
	return c.baseURL + "/storage/v1" + resp.SignedURL, nil
}
