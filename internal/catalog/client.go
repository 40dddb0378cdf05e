// Package catalog wraps the Kinopoisk-style metadata API: keyword
// search, film detail and staff lookups with uniform status-code
// handling and a bounded response cache.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pbelyaev/kinoscribe/internal/clock"
	"github.com/pbelyaev/kinoscribe/internal/logger"
)

const (
	searchPath = "/api/v2.1/films/search-by-keyword"
	filmPath   = "/api/v2.2/films"
	staffPath  = "/api/v1/staff"

	professionActor    = "ACTOR"
	professionDirector = "DIRECTOR"
)

// SearchResult is one candidate entry from the keyword search.
type SearchResult struct {
	FilmID int64  `json:"filmId"`
	Title  string `json:"nameRu"`
	Year   string `json:"year"`
}

// Person is one cast or crew member from the staff endpoint.
type Person struct {
	NameRu      string `json:"nameRu"`
	NameEn      string `json:"nameEn"`
	Description string `json:"description"`
	PosterURL   string `json:"posterUrl"`
}

// Staff holds the filtered staff listing for a film. Actors are
// capped by the maxActors argument, directors are not. Both preserve
// response order.
type Staff struct {
	Actors    []Person
	Directors []Person
}

// Client is a stateless HTTP wrapper around the three catalog
// endpoints, except for its process-lifetime response cache.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *resultCache
}

// NewClient builds a catalog client. cacheSize and cacheTTL bound the
// response cache; clk may be nil for wall-clock time.
func NewClient(baseURL, apiKey string, timeout time.Duration, cacheSize int, cacheTTL time.Duration, clk clock.Clock) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		cache:      newResultCache(cacheSize, cacheTTL, clk),
	}
}

// SearchByKeyword looks up candidate films by title. found=false with
// a nil error means the catalog answered 404 for this keyword.
func (c *Client) SearchByKeyword(ctx context.Context, title string) ([]SearchResult, bool, error) {
	cacheKey := "search|" + title
	if value, found, hit := c.cache.get(cacheKey); hit {
		logger.Debugf("Catalog: cache hit for search %q", title)
		if !found {
			return nil, false, nil
		}
		return value.([]SearchResult), true, nil
	}

	reqURL := c.baseURL + searchPath + "?keyword=" + url.QueryEscape(title)
	body, found, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, false, err
	}
	if !found {
		c.cache.put(cacheKey, nil, false)
		return nil, false, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, &ShapeError{Endpoint: searchPath, Reason: "body is not a JSON object"}
	}
	filmsJSON, ok := raw["films"]
	if !ok {
		return nil, false, &ShapeError{Endpoint: searchPath, Reason: "missing films key"}
	}
	var films []SearchResult
	if err := json.Unmarshal(filmsJSON, &films); err != nil {
		return nil, false, &ShapeError{Endpoint: searchPath, Reason: "films is not an array of film entries"}
	}

	c.cache.put(cacheKey, films, true)
	return films, true, nil
}

// FilmDetail fetches the raw film record by catalog ID. The record is
// returned untyped; field mapping is the normalizer's concern.
func (c *Client) FilmDetail(ctx context.Context, filmID int64) (map[string]interface{}, bool, error) {
	cacheKey := fmt.Sprintf("film|%d", filmID)
	if value, found, hit := c.cache.get(cacheKey); hit {
		logger.Debugf("Catalog: cache hit for film %d", filmID)
		if !found {
			return nil, false, nil
		}
		return value.(map[string]interface{}), true, nil
	}

	reqURL := fmt.Sprintf("%s%s/%d", c.baseURL, filmPath, filmID)
	body, found, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, false, err
	}
	if !found {
		c.cache.put(cacheKey, nil, false)
		return nil, false, nil
	}

	var record map[string]interface{}
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, false, &ShapeError{Endpoint: filmPath, Reason: "body is not a JSON object"}
	}

	c.cache.put(cacheKey, record, true)
	return record, true, nil
}

// StaffDetail fetches cast and crew for a film, keeping at most
// maxActors actors and every director, in response order.
func (c *Client) StaffDetail(ctx context.Context, filmID int64, maxActors int) (*Staff, bool, error) {
	cacheKey := fmt.Sprintf("staff|%d|%d", filmID, maxActors)
	if value, found, hit := c.cache.get(cacheKey); hit {
		logger.Debugf("Catalog: cache hit for staff %d", filmID)
		if !found {
			return nil, false, nil
		}
		return value.(*Staff), true, nil
	}

	reqURL := fmt.Sprintf("%s%s?filmId=%d", c.baseURL, staffPath, filmID)
	body, found, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, false, err
	}
	if !found {
		c.cache.put(cacheKey, nil, false)
		return nil, false, nil
	}

	var persons []struct {
		Person
		ProfessionKey string `json:"professionKey"`
	}
	if err := json.Unmarshal(body, &persons); err != nil {
		return nil, false, &ShapeError{Endpoint: staffPath, Reason: "body is not a JSON array of persons"}
	}

	staff := &Staff{}
	for _, p := range persons {
		switch p.ProfessionKey {
		case professionActor:
			if len(staff.Actors) < maxActors {
				staff.Actors = append(staff.Actors, p.Person)
			}
		case professionDirector:
			staff.Directors = append(staff.Directors, p.Person)
		}
	}

	c.cache.put(cacheKey, staff, true)
	return staff, true, nil
}

// FetchImage downloads an image URL and returns its bytes. Image
// requests bypass the response cache and the API-key header.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image fetch returned status %d", ErrUnreachable, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return data, nil
}

// doRequest performs one authenticated GET and applies the uniform
// status-code contract. found=false means a 404 response.
func (c *Client) doRequest(ctx context.Context, reqURL string) (body []byte, found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to body read
	case http.StatusNotFound:
		return nil, false, nil
	case http.StatusUnauthorized:
		return nil, false, ErrUnauthorized
	case http.StatusPaymentRequired:
		return nil, false, ErrQuotaExceeded
	case http.StatusTooManyRequests:
		return nil, false, ErrRateLimited
	default:
		return nil, false, fmt.Errorf("%w: unexpected status %d", ErrUnreachable, resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return body, true, nil
}
