package backend

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
)

// UploadBlob stores data under path in the photo bucket and returns the
// public URL. Content validation happens upstream in the uploader; this call
// only moves bytes.
func (c *Client) UploadBlob(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	headers := map[string]string{
		"Content-Type":  contentType,
		"Cache-Control": "max-age=3600",
	}

	resp, err := c.do(ctx, "POST", "/storage/v1/object/"+c.bucket+"/"+escapeObjectPath(path), headers, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)

	return c.PublicURL(path), nil
}

// DeleteBlob removes the object at path from the photo bucket.
func (c *Client) DeleteBlob(ctx context.Context, path string) error {
	resp, err := c.do(ctx, "DELETE", "/storage/v1/object/"+c.bucket+"/"+escapeObjectPath(path), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// PublicURL returns the unauthenticated URL serving the object at path.
func (c *Client) PublicURL(path string) string {
	return c.baseURL + "/storage/v1/object/public/" + c.bucket + "/" + escapeObjectPath(path)
}

// escapeObjectPath escapes each segment of an object path while keeping the
// separators, since object keys are hierarchical (userID/filename).
func escapeObjectPath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
