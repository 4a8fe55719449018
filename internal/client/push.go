package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// PushStart opens a push transaction against the given project version.
// The server validates that version matches its current state (rejecting
// pushes from stale local copies) and reserves the declared chunk IDs.
// Returns the transaction ID to use for chunk uploads and finalization.
func (c *Client) PushStart(ctx context.Context, namespace, name, version string, changes model.Changes) (string, error) {
	payload := struct {
		Version string        `json:"version"`
		Changes model.Changes `json:"changes"`
	}{Version: version, Changes: changes}

	var resp struct {
		Transaction string `json:"transaction"`
	}
	path := fmt.Sprintf("/v1/project/push/%s/%s", url.PathEscape(namespace), url.PathEscape(name))
	if err := c.postJSON(ctx, c.endpoint(path, nil), payload, &resp); err != nil {
		return "", err
	}
	if resp.Transaction == "" {
		return "", serverError("push start returned no transaction ID")
	}
	return resp.Transaction, nil
}

// PushChunk uploads one chunk of file content within a transaction.
// The chunk ID must be one of the IDs declared in the PushStart changes.
func (c *Client) PushChunk(ctx context.Context, transaction, chunkID string, data io.Reader, size int64) error {
	path := fmt.Sprintf("/v1/project/push/chunk/%s/%s",
		url.PathEscape(transaction), url.PathEscape(chunkID))
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(path, nil), data)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = size

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// PushFinish commits a transaction. The server assembles the uploaded
// chunks, verifies checksums and creates the new project version, which
// is returned so the caller can update local metadata.
func (c *Client) PushFinish(ctx context.Context, transaction string) (model.ProjectInfo, error) {
	var info model.ProjectInfo
	path := "/v1/project/push/finish/" + url.PathEscape(transaction)
	if err := c.postJSON(ctx, c.endpoint(path, nil), nil, &info); err != nil {
		return info, err
	}
	return info, nil
}

// PushCancel aborts a transaction, discarding any uploaded chunks.
func (c *Client) PushCancel(ctx context.Context, transaction string) error {
	path := "/v1/project/push/cancel/" + url.PathEscape(transaction)
	return c.postJSON(ctx, c.endpoint(path, nil), nil, nil)
}
