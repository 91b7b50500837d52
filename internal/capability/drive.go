package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const driveDefaultBaseURL = "https://www.googleapis.com/drive/v3"

// DriveAdapter searches or lists files in the connected Google Drive.
type DriveAdapter struct {
	baseURL string
	client  *http.Client
}

type DriveOption func(*DriveAdapter)

func WithDriveBaseURL(u string) DriveOption {
	return func(a *DriveAdapter) { a.baseURL = strings.TrimRight(u, "/") }
}

func WithDriveHTTPClient(c *http.Client) DriveOption {
	return func(a *DriveAdapter) { a.client = c }
}

func NewDriveAdapter(opts ...DriveOption) *DriveAdapter {
	a := &DriveAdapter{
		baseURL: driveDefaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *DriveAdapter) Name() string { return "google_drive" }

type driveFileList struct {
	Files []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		MimeType     string `json:"mimeType"`
		WebViewLink  string `json:"webViewLink"`
		ModifiedTime string `json:"modifiedTime"`
	} `json:"files"`
}

func (a *DriveAdapter) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AccessToken) == "" {
		return Result{}, fmt.Errorf("google drive: %w", ErrNotConnected)
	}

	params := url.Values{}
	params.Set("pageSize", "10")
	params.Set("fields", "files(id,name,mimeType,webViewLink,modifiedTime)")
	params.Set("orderBy", "modifiedTime desc")
	if req.Operation != "list_recent" {
		if q := req.Arg("query", req.Query); q != "" {
			params.Set("q", fmt.Sprintf("name contains '%s' and trashed = false", strings.ReplaceAll(q, "'", `\'`)))
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/files?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("google drive: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("google drive: list files: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Result{}, fmt.Errorf("google drive: %w", ErrNotConnected)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("google drive: list files failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var list driveFileList
	if err := json.Unmarshal(body, &list); err != nil {
		return Result{}, fmt.Errorf("google drive: parse file list: %w", err)
	}

	items := make([]Item, 0, len(list.Files))
	for _, f := range list.Files {
		items = append(items, Item{
			Title:   f.Name,
			URL:     f.WebViewLink,
			Snippet: fmt.Sprintf("%s, modified %s", f.MimeType, f.ModifiedTime),
		})
	}
	if len(items) == 0 {
		items = append(items, Item{Title: "No files found", Snippet: "The Drive query returned no files."})
	}
	return Result{Query: req.Query, Items: items}, nil
}
