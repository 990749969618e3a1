// internal/api/client.go
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
)

// Client reads maps from a rovermap HTTP server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the map server is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// ListMaps returns the maps stored on the server.
func (c *Client) ListMaps() ([]storage.MapInfo, error) {
	var maps []storage.MapInfo
	if err := c.getJSON("/maps", &maps); err != nil {
		return nil, err
	}
	return maps, nil
}

// GetMap fetches a map document. The name "current" is the live session.
func (c *Client) GetMap(name string) (*session.Document, error) {
	doc := &session.Document{}
	if err := c.getJSON("/maps/"+url.PathEscape(name), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DownloadGeoJSON writes the GeoJSON rendering of a map to dir and returns
// the path of the written file.
func (c *Client) DownloadGeoJSON(name, dir string) (string, error) {
	resp, err := c.get("/maps/" + url.PathEscape(name) + "/geojson")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	outPath := filepath.Join(dir, strings.TrimSuffix(name, storage.Extension)+".geojson")
	file, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return outPath, nil
}

func (c *Client) getJSON(path string, v any) error {
	resp, err := c.get(path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// get returns the response for path, or an error carrying the server's
// message for any status other than 200.
func (c *Client) get(path string) (*http.Response, error) {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	var body struct {
		Error string `json:"error"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, body.Error)
	}
	return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
}
