package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/logging"
)

const (
	// DefaultBaseURL is the PS Store title container endpoint
	DefaultBaseURL = "https://store.playstation.com/store/api/chihiro/00_09_000/titlecontainer"

	// DefaultRegion is used when no region is configured
	DefaultRegion = "United States"

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 3 * time.Second

	// browserUserAgent is required; the store rejects unknown clients
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/63.0.3239.84 Safari/537.36"

	// maxErrorBody caps how much of an error response is logged
	maxErrorBody = 512
)

var (
	// ErrUnknownRegion is returned for a region not in Countries
	ErrUnknownRegion = errors.New("unknown store region")

	// ErrNotFound is returned when the store has no data for a title
	ErrNotFound = errors.New("title not found in store")

	// ErrIncomplete is returned when the store answers without the title
	// name or content type list
	ErrIncomplete = errors.New("store data missing title fields")
)

// GameRecord is the store data for one title
type GameRecord struct {
	TitleID  string `json:"title_id"`
	Name     string `json:"name"`
	GameType string `json:"game_type,omitempty"` // First content type, e.g. "Game" or "APP"
	SKUID    string `json:"sku_id"`
	CoverArt string `json:"cover_art"`
}

// storeResponse holds the fields read from a title container
type storeResponse struct {
	TitleName    *string        `json:"title_name"`
	ID           string         `json:"id"`
	ContentTypes *[]contentType `json:"gameContentTypesList"`
}

type contentType struct {
	Key string `json:"key"`
}

// Client looks up titles in the PS Store
type Client struct {
	// BaseURL is the title container endpoint
	BaseURL string

	// Region is a key of Countries, or a deprecated R1-R5 code
	Region string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// NewClient creates a store client for region; "" means DefaultRegion.
func NewClient(region string) *Client {
	if region == "" {
		region = DefaultRegion
	}
	return &Client{
		BaseURL:    DefaultBaseURL,
		Region:     region,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// titleURL returns the store data URL for titleID
func (c *Client) titleURL(titleID string) (string, error) {
	lang, country, err := RegionCodes(c.Region)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/999/%s_00", c.BaseURL, country, lang, url.PathEscape(titleID)), nil
}

// Lookup fetches the store record for titleID.
func (c *Client) Lookup(ctx context.Context, titleID string) (*GameRecord, error) {
	dataURL, err := c.titleURL(titleID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")

	logging.Debug("PS Store GET", zap.String("url", dataURL))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.Debug("PS Store HTTP error",
			zap.String("title_id", titleID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, titleID)
		}
		return nil, fmt.Errorf("store returned HTTP %d for %s", resp.StatusCode, titleID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read store response: %w", err)
	}
	return decodeRecord(titleID, dataURL, body)
}

func decodeRecord(titleID, dataURL string, body []byte) (*GameRecord, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) || bytes.Equal(body, []byte("{}")) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, titleID)
	}

	var data storeResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode store response: %w", err)
	}
	if data.TitleName == nil || data.ContentTypes == nil {
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, titleID)
	}

	rec := &GameRecord{
		TitleID:  titleID,
		Name:     *data.TitleName,
		SKUID:    data.ID,
		CoverArt: dataURL + "/image",
	}
	if rec.SKUID == "" {
		rec.SKUID = titleID
	}
	if types := *data.ContentTypes; len(types) > 0 {
		rec.GameType = types[0].Key
	}
	return rec, nil
}
