package proc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/pekasen/OER-Scraper/internal/app/oerscraper/program"
	"github.com/pekasen/OER-Scraper/internal/configs"
)

// the API rejects unknown agents and expects text/plain even for JSON bodies
const (
	mediathekUserAgent   = "ax mvclient 0.1.1"
	mediathekContentType = "text/plain"
)

// MediathekClient queries the MediathekView listing API
type MediathekClient struct {
	URL    string
	Client *http.Client
}

// NewMediathekClient for the given endpoint, timeout in seconds
func NewMediathekClient(apiURL string, timeout int) *MediathekClient {
	return &MediathekClient{
		URL:    apiURL,
		Client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

type listingResult struct {
	ID          string `json:"id"`
	Channel     string `json:"channel"`
	Topic       string `json:"topic"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"`
	Duration    int64  `json:"duration"`
	Size        int64  `json:"size"`
	URLWebsite  string `json:"url_website"`
	URLSubtitle string `json:"url_subtitle"`
	URLVideo    string `json:"url_video"`
	URLVideoLow string `json:"url_video_low"`
	URLVideoHD  string `json:"url_video_hd"`
}

type listingResponse struct {
	Result struct {
		Results   []listingResult `json:"results"`
		QueryInfo struct {
			ResultCount  int `json:"resultCount"`
			TotalResults int `json:"totalResults"`
		} `json:"queryInfo"`
	} `json:"result"`
	Err []string `json:"err"`
}

// FetchListing posts the program query and returns the current listing.
// Duplicate subtitle URLs are dropped (first one wins) and episodes without an
// https subtitle URL are discarded.
func (m *MediathekClient) FetchListing(ctx context.Context, programID string, query *configs.ProgramQuery) ([]*program.Episode, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("can't marshal query for %s: %w", programID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("can't build listing request: %w", err)
	}
	req.Header.Set("User-Agent", mediathekUserAgent)
	req.Header.Set("Content-Type", mediathekContentType)

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing request for %s failed: %w", programID, err)
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("listing request for %s returned status %d: %s", programID, resp.StatusCode, string(snippet))
	}

	var listing listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("can't decode listing for %s: %w", programID, err)
	}
	if len(listing.Err) > 0 {
		return nil, fmt.Errorf("listing query for %s rejected: %s", programID, strings.Join(listing.Err, "; "))
	}

	log.Printf("[DEBUG] listing for %s returned %d results", programID, len(listing.Result.Results))

	seen := map[string]bool{}
	var episodes []*program.Episode
	for _, r := range listing.Result.Results {
		if seen[r.URLSubtitle] {
			continue
		}
		seen[r.URLSubtitle] = true
		if !strings.HasPrefix(r.URLSubtitle, "https") {
			continue
		}

		episodes = append(episodes, &program.Episode{
			ID:          fmt.Sprintf("%s_%d", programID, r.Timestamp),
			Program:     programID,
			Channel:     r.Channel,
			Topic:       r.Topic,
			Title:       r.Title,
			Description: r.Description,
			Timestamp:   time.Unix(r.Timestamp, 0).UTC(),
			Duration:    r.Duration,
			Size:        r.Size,
			URLWebsite:  r.URLWebsite,
			URLSubtitle: r.URLSubtitle,
			URLVideo:    r.URLVideo,
			URLVideoLow: r.URLVideoLow,
			URLVideoHD:  r.URLVideoHD,
			Status:      program.New,
		})
	}

	return episodes, nil
}
