// Package client is a minimal HTTP client for the vanish API, used by the
// command-line tool.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strings"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to one vanish server. Session cookies from Login are kept in
// an in-memory jar for the lifetime of the client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given server base URL.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar},
	}, nil
}

func (c *Client) postJSON(path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login authenticates and stores the session cookie.
func (c *Client) Login(username, password string) error {
	return c.postJSON("/api/users/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
}

// UploadResult mirrors the server's upload response.
type UploadResult struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	ExpiresAt string `json:"expires_at"`
}

// UploadOptions are the optional upload settings.
type UploadOptions struct {
	Expiration string
	Password   string
	OneTime    bool
}

// Upload sends a local file to the server. Requires a prior Login.
func (c *Client) Upload(path string, opts UploadOptions) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if opts.Expiration != "" {
		w.WriteField("expiration", opts.Expiration)
	}
	if opts.Password != "" {
		w.WriteField("password", opts.Password)
	}
	if opts.OneTime {
		w.WriteField("one_time_download", "true")
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/api/upload", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &UploadResult{}
	if err := decodeResponse(resp, result); err != nil {
		return nil, err
	}
	return result, nil
}

// FileInfo mirrors the server's public metadata response.
type FileInfo struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	HasPassword bool   `json:"has_password"`
	OneTime     bool   `json:"one_time_download"`
}

// Info fetches public metadata for a file.
func (c *Client) Info(uuid string) (*FileInfo, error) {
	resp, err := c.http.Get(c.baseURL + "/api/files/" + uuid)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	info := &FileInfo{}
	if err := decodeResponse(resp, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Download fetches a file and writes it to outPath.
func (c *Client) Download(uuid, password, outPath string) (int64, error) {
	payload, _ := json.Marshal(map[string]string{"password": password})
	resp, err := c.http.Post(c.baseURL+"/api/files/download/"+uuid,
		"application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, decodeResponse(resp, nil)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return n, nil
}

// Delete removes an owned file. Requires a prior Login.
func (c *Client) Delete(uuid string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/files/"+uuid, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, nil)
}
