// Package crowdin talks to the Crowdin API v2 and mirrors mod locale
// directories into Crowdin directories.
package crowdin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("crowdin")

const (
	// DefaultBaseURL is the Crowdin API v2 root.
	DefaultBaseURL = "https://api.crowdin.com/api/v2"
	// ProjectName is the expected name of the production project.
	ProjectName = "Factorio mods localization"

	pageLimit         = 500
	defaultMaxRetries = 3
)

// Client is a Crowdin API client bound to one project.
type Client struct {
	BaseURL   string
	ProjectID int64
	Token     string
	HTTP      *http.Client
	// PollInterval between build status checks.
	PollInterval time.Duration
	// MaxRetries bounds retries of rate limited (429) requests.
	MaxRetries int
}

// New returns a client for the given project with default settings.
func New(projectID int64, token string) *Client {
	return &Client{
		BaseURL:      DefaultBaseURL,
		ProjectID:    projectID,
		Token:        token,
		HTTP:         makeHTTPClient(2 * time.Minute),
		PollInterval: time.Second,
		MaxRetries:   defaultMaxRetries,
	}
}

// APIError is a non-2xx response from Crowdin.
type APIError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crowdin: %s %s failed with code %d, response: `%s`", e.Method, e.URL, e.Status, truncate(e.Body, 500))
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

func makeHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) projectURL(path string) string {
	return c.baseURL() + "/projects/" + strconv.FormatInt(c.ProjectID, 10) + path
}

// request describes one API call. out receives the "data" member of the
// response envelope and may be nil.
type request struct {
	method  string
	url     string
	query   url.Values
	body    []byte
	headers map[string]string
	out     any
}

func (c *Client) do(ctx context.Context, r request) error {
	target := r.url
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	for attempt := 0; ; attempt++ {
		var body io.Reader
		if r.body != nil {
			body = bytes.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, target, body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return fmt.Errorf("crowdin: %s %s: %w", r.method, target, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("crowdin: reading response of %s %s: %w", r.method, target, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.MaxRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"), attempt)
			log.Warnf("rate limited on %s %s, retrying in %v", r.method, target, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{Method: r.method, URL: target, Status: resp.StatusCode, Body: string(respBody)}
		}

		if r.out == nil {
			return nil
		}
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("crowdin: decoding response of %s %s: %w", r.method, target, err)
		}
		if err := json.Unmarshal(envelope.Data, r.out); err != nil {
			return fmt.Errorf("crowdin: decoding data of %s %s: %w", r.method, target, err)
		}
		return nil
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, request{method: http.MethodGet, url: c.projectURL(path), query: query, out: out})
}

func (c *Client) send(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, request{
		method:  method,
		url:     c.projectURL(path),
		body:    body,
		headers: map[string]string{"Content-Type": "application/json"},
		out:     out,
	})
}

// getPaginated collects every page of a list endpoint. Crowdin wraps each
// item in its own {"data": ...} envelope.
func getPaginated[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var result []T
	for offset := 0; ; offset += pageLimit {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(pageLimit))

		var page []struct {
			Data T `json:"data"`
		}
		if err := c.get(ctx, path, q, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return result, nil
		}
		for _, item := range page {
			result = append(result, item.Data)
		}
	}
}

func retryAfter(header string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

// ProjectInfo is the subset of project metadata used here.
type ProjectInfo struct {
	Name              string   `json:"name"`
	TargetLanguageIDs []string `json:"targetLanguageIds"`
}

// DirectoryInfo is a Crowdin directory.
type DirectoryInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FileInfo is a Crowdin source file.
type FileInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

type urlResponse struct {
	URL string `json:"url"`
}

// ProjectInfo fetches the project metadata.
func (c *Client) ProjectInfo(ctx context.Context) (*ProjectInfo, error) {
	var info ProjectInfo
	if err := c.get(ctx, "", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListDirectories returns every directory of the project.
func (c *Client) ListDirectories(ctx context.Context) ([]DirectoryInfo, error) {
	return getPaginated[DirectoryInfo](ctx, c, "/directories", nil)
}

// DirectoryNames returns the set of directory names of the project.
func (c *Client) DirectoryNames(ctx context.Context) (map[string]bool, error) {
	dirs, err := c.ListDirectories(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		names[d.Name] = true
	}
	return names, nil
}

// FindDirectory returns the id of the directory called name.
func (c *Client) FindDirectory(ctx context.Context, name string) (int64, bool, error) {
	dirs, err := c.ListDirectories(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, d := range dirs {
		if d.Name == name {
			return d.ID, true, nil
		}
	}
	return 0, false, nil
}

// CreateDirectory creates a top level directory.
func (c *Client) CreateDirectory(ctx context.Context, name string) (int64, error) {
	var resp idResponse
	payload := map[string]any{"name": name}
	if err := c.send(ctx, http.MethodPost, "/directories", payload, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// ListFiles returns the source files of a directory.
func (c *Client) ListFiles(ctx context.Context, directoryID int64) ([]FileInfo, error) {
	q := url.Values{"directoryId": {strconv.FormatInt(directoryID, 10)}}
	return getPaginated[FileInfo](ctx, c, "/files", q)
}

// CreateFile adds an English source file from storage.
func (c *Client) CreateFile(ctx context.Context, directoryID, storageID int64, name string) (int64, error) {
	payload := map[string]any{
		"directoryId": directoryID,
		"storageId":   storageID,
		"name":        name,
		"type":        "ini",
	}
	var resp idResponse
	if err := c.send(ctx, http.MethodPost, "/files", payload, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// UpdateFile replaces the content of a source file.
func (c *Client) UpdateFile(ctx context.Context, fileID, storageID int64) error {
	payload := map[string]any{"storageId": storageID}
	return c.send(ctx, http.MethodPut, "/files/"+strconv.FormatInt(fileID, 10), payload, nil)
}

// UploadStorage uploads raw file content and returns its storage id.
// Storages are account wide, not per project.
func (c *Client) UploadStorage(ctx context.Context, name, content string) (int64, error) {
	var resp idResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		url:    c.baseURL() + "/storages",
		body:   []byte(content),
		headers: map[string]string{
			"Content-Type":         "application/octet-stream",
			"Crowdin-API-FileName": name,
		},
		out: &resp,
	})
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// AddTranslation attaches an uploaded translation to its English file.
// Translations equal to the source are skipped and nothing is approved.
func (c *Client) AddTranslation(ctx context.Context, languageCode string, fileID, storageID int64) error {
	payload := map[string]any{
		"fileId":              fileID,
		"storageId":           storageID,
		"importEqSuggestions": false,
		"autoApproveImported": false,
	}
	return c.send(ctx, http.MethodPost, "/translations/"+languageCode, payload, nil)
}

// BuildTranslations starts a project build and returns its id.
func (c *Client) BuildTranslations(ctx context.Context) (int64, error) {
	payload := map[string]any{"skipUntranslatedStrings": true}
	var resp idResponse
	if err := c.send(ctx, http.MethodPost, "/translations/builds", payload, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// BuildStatus returns the status of a build, "inProgress" while running.
func (c *Client) BuildStatus(ctx context.Context, buildID int64) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/translations/builds/"+strconv.FormatInt(buildID, 10), nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// BuildDownloadURL returns the archive URL of a finished build.
func (c *Client) BuildDownloadURL(ctx context.Context, buildID int64) (string, error) {
	var resp urlResponse
	if err := c.get(ctx, "/translations/builds/"+strconv.FormatInt(buildID, 10)+"/download", nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// fetch downloads a pre-signed URL without credentials. Archives of the
// whole project can be large, so only ctx bounds the transfer.
func (c *Client) fetch(ctx context.Context, rawURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	client := *c.httpClient()
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: http.MethodGet, URL: rawURL, Status: resp.StatusCode, Body: string(body)}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	return nil
}
