package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// Session is the result of a successful login.
type Session struct {
	// Token is the bearer token to present on subsequent requests.
	Token string `json:"token"`

	// Expire is the token expiry timestamp as reported by the server.
	// Kept as the server's string form; the client does not act on it.
	Expire string `json:"expire"`
}

// ServerInfo is the /ping response.
type ServerInfo struct {
	// Version is the server release, e.g. "2020.2.1".
	Version string `json:"version"`
}

// Login authenticates with the server and returns a session token.
// The client's own auth token is not modified; callers decide whether
// to adopt the new session.
func (c *Client) Login(ctx context.Context, login, password string) (Session, error) {
	var resp struct {
		Session Session `json:"session"`
	}
	payload := map[string]string{"login": login, "password": password}
	if err := c.postJSON(ctx, c.endpoint("/v1/auth/login", nil), payload, &resp); err != nil {
		return Session{}, err
	}
	if resp.Session.Token == "" {
		return Session{}, serverError("login response carried no session token")
	}
	return resp.Session, nil
}

// ServerInfo fetches the server's version information.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	if err := c.getJSON(ctx, c.endpoint("/ping", nil), &info); err != nil {
		return info, err
	}
	return info, nil
}

// IsServerCompatible reports whether the server release is at least
// MinServerVersion. Comparison is on major.minor; anything beyond the
// minor component is ignored.
func (c *Client) IsServerCompatible(ctx context.Context) (bool, error) {
	info, err := c.ServerInfo(ctx)
	if err != nil {
		return false, err
	}
	sMajor, sMinor, err := parseRelease(info.Version)
	if err != nil {
		return false, err
	}
	mMajor, mMinor, err := parseRelease(MinServerVersion)
	if err != nil {
		return false, err
	}
	if sMajor != mMajor {
		return sMajor > mMajor, nil
	}
	return sMinor >= mMinor, nil
}

// parseRelease extracts major and minor numbers from a release string
// like "2020.2.1".
func parseRelease(v string) (major, minor int, err error) {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return 0, 0, errors.Errorf("unexpected server version %q", v)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errors.Errorf("unexpected server version %q", v)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, errors.Errorf("unexpected server version %q", v)
	}
	return major, minor, nil
}

// ListProjects fetches projects visible to the current user. The flag
// filter matches the server's semantics: "created" for own projects,
// "shared" for projects shared with the user, empty for all public
// projects.
func (c *Client) ListProjects(ctx context.Context, flag string) ([]model.ProjectInfo, error) {
	query := url.Values{}
	if flag != "" {
		query.Set("flag", flag)
	}
	var projects []model.ProjectInfo
	if err := c.getJSON(ctx, c.endpoint("/v1/project", query), &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ProjectInfo fetches the current state of a project, including its full
// file listing. When since is a non-empty version tag, the server also
// includes per-file history from that version onward.
func (c *Client) ProjectInfo(ctx context.Context, namespace, name, since string) (model.ProjectInfo, error) {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	var info model.ProjectInfo
	path := fmt.Sprintf("/v1/project/%s/%s", url.PathEscape(namespace), url.PathEscape(name))
	if err := c.getJSON(ctx, c.endpoint(path, query), &info); err != nil {
		return info, err
	}
	return info, nil
}

// CreateProject creates an empty project in the given namespace.
func (c *Client) CreateProject(ctx context.Context, namespace, name string, isPublic bool) error {
	payload := map[string]interface{}{
		"name":   name,
		"public": isPublic,
	}
	path := "/v1/project/" + url.PathEscape(namespace)
	return c.postJSON(ctx, c.endpoint(path, nil), payload, nil)
}

// DeleteProject removes a project from the server.
func (c *Client) DeleteProject(ctx context.Context, namespace, name string) error {
	path := fmt.Sprintf("/v1/project/%s/%s", url.PathEscape(namespace), url.PathEscape(name))
	req, err := c.newRequest(ctx, http.MethodDelete, c.endpoint(path, nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// DownloadFile streams a file's content at the given project version
// into w. When length is positive, only the byte range
// [offset, offset+length) is requested via an HTTP Range header; the
// sync engine uses this to fetch large files as parallel chunks.
// Returns the number of bytes written.
func (c *Client) DownloadFile(ctx context.Context, namespace, name, version, filePath string, w io.Writer, offset, length int64) (int64, error) {
	query := url.Values{}
	query.Set("file", filePath)
	if version != "" {
		query.Set("version", version)
	}
	path := fmt.Sprintf("/v1/project/raw/%s/%s", url.PathEscape(namespace), url.PathEscape(name))

	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return 0, err
	}
	if length > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	}

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if length > 0 && resp.StatusCode != http.StatusPartialContent {
		// The server answered a ranged request with the whole file; that
		// breaks reassembly, so treat it as a protocol error.
		return 0, serverError("ranged download of %q not honored (status %d)", filePath, resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Wrapf(err, "download %q", filePath)
	}
	return n, nil
}
