package tributeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lovepages/tribute-server/domain"
)

var (
	ErrNotFound = errors.New("tribute not found")
	// ErrRetriesExhausted means the poll budget ran out before the record
	// flipped to paid; the caller should fall back to manual refresh.
	ErrRetriesExhausted = errors.New("poll retries exhausted")
)

func New(apiUrl string) *Client {
	return &Client{
		apiUrl: strings.TrimSuffix(apiUrl, "/"),
		hc:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Client talks to the tribute api server.
type Client struct {
	apiUrl string
	hc     *http.Client
}

func (c *Client) GetTribute(ctx context.Context, slug string) (tribute *domain.Tribute, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiUrl+"/api/tributes/"+slug, nil)
	if err != nil {
		return
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := c.hc.Do(req)
	if err != nil {
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	tribute = new(domain.Tribute)
	if err = json.Unmarshal(data, tribute); err != nil {
		return nil, err
	}
	return
}
