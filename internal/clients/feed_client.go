package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

//go:generate mockgen -destination=mocks/clients_mock.go -package=mocks trendforge/internal/clients FeedClient,CompletionClient

// FeedClient talks to a DailyHot-style trending API.
type FeedClient interface {
	// ResolveRoutes returns the route directory as source name -> path.
	// Sources missing from the map have no route.
	ResolveRoutes(ctx context.Context) (map[string]string, error)
	// Fetch returns the raw records served at path.
	Fetch(ctx context.Context, path string) ([]map[string]any, error)
}

type feedClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewFeedClient(baseURL string, timeout time.Duration) FeedClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &feedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type routeDirectory struct {
	Code   *int `json:"code"`
	Routes []struct {
		Name string `json:"name"`
		Path string `json:"path"`
	} `json:"routes"`
}

type feedPage struct {
	Code *int            `json:"code"`
	Data json.RawMessage `json:"data"`
}

func (c *feedClient) ResolveRoutes(ctx context.Context) (map[string]string, error) {
	body, err := c.get(ctx, "/all")
	if err != nil {
		return nil, err
	}

	var dir routeDirectory
	if err := json.Unmarshal(body, &dir); err != nil {
		return nil, fmt.Errorf("%w: decode route directory: %v", ErrTransport, err)
	}
	if dir.Code == nil || *dir.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: route directory returned code %s", ErrTransport, codeString(dir.Code))
	}

	routes := make(map[string]string, len(dir.Routes))
	for _, route := range dir.Routes {
		if route.Name == "" || route.Path == "" {
			continue
		}
		routes[route.Name] = route.Path
	}
	return routes, nil
}

func (c *feedClient) Fetch(ctx context.Context, path string) ([]map[string]any, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var page feedPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}
	if page.Code == nil || *page.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned code %s", ErrTransport, path, codeString(page.Code))
	}

	// Numbers stay json.Number so 13 and 19 digit values keep every digit.
	dec := json.NewDecoder(bytes.NewReader(page.Data))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %s data is not an array of objects: %v", ErrTransport, path, err)
	}
	return records, nil
}

func (c *feedClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "trendforge/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrTransport, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s returned status %d: %s", ErrTransport, path, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func codeString(code *int) string {
	if code == nil {
		return "<missing>"
	}
	return fmt.Sprint(*code)
}

func truncate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
