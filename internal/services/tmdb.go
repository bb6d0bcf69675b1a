// TMDB v3 implementation of [Provider]
//
// Response types based on https://developer.themoviedb.org/reference
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/models"
	"github.com/desertthunder/reel/internal/shared"
	"golang.org/x/oauth2"
)

const (
	DefaultTMDBBaseURL  = "https://api.themoviedb.org/3"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p"
)

// TMDBPage is a paginated listing.
type TMDBPage struct {
	Page         int                  `json:"page"`
	TotalPages   int                  `json:"total_pages"`
	TotalResults int                  `json:"total_results"`
	Results      []models.CatalogItem `json:"results"`
}

// TMDBGenres is the genre list response.
type TMDBGenres struct {
	Genres []models.Genre `json:"genres"`
}

// TMDBDetails carries the fields of /movie/{id} and /tv/{id} that listings lack.
type TMDBDetails struct {
	Genres         []models.Genre `json:"genres"`
	Runtime        *int           `json:"runtime"`
	EpisodeRunTime []int          `json:"episode_run_time"`
	VoteCount      *int           `json:"vote_count"`
	Tagline        *string        `json:"tagline"`
	Homepage       *string        `json:"homepage"`
}

// TMDBVideos is the videos response.
type TMDBVideos struct {
	Results []models.Video `json:"results"`
}

// TMDBClient implements [Provider] for TMDB.
type TMDBClient struct {
	api          *APIClient
	apiKey       string
	language     string
	imageBaseURL string
}

var _ Provider = (*TMDBClient)(nil)

// ClientOption configures a [TMDBClient].
type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     *log.Logger
}

// WithHTTPClient sets the base HTTP client. Its transport is wrapped for bearer auth.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the logger used for retries.
func WithLogger(l *log.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// NewTMDBClient builds a client from cfg. A read token takes precedence over an API key.
func NewTMDBClient(cfg shared.TMDBConfig, opts ...ClientOption) (*TMDBClient, error) {
	if cfg.APIKey == "" && cfg.ReadToken == "" {
		return nil, fmt.Errorf("%w: set tmdb.api_key or tmdb.read_token", shared.ErrMissingCredentials)
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	client := &http.Client{Timeout: cfg.Timeout.Duration}
	if o.httpClient != nil {
		copied := *o.httpClient
		client = &copied
		if cfg.Timeout.Duration > 0 {
			client.Timeout = cfg.Timeout.Duration
		}
	}

	apiKey := cfg.APIKey
	if cfg.ReadToken != "" {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.ReadToken, TokenType: "Bearer"}),
			Base:   base,
		}
		apiKey = ""
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultTMDBBaseURL
	}
	imageBaseURL := cfg.ImageBaseURL
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}

	attempts := cfg.Retries + 1
	return &TMDBClient{
		api:          NewAPIClient(baseURL, client, cfg.RateLimit, attempts, o.logger),
		apiKey:       apiKey,
		language:     cfg.Language,
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
	}, nil
}

// API exposes the underlying transport.
func (c *TMDBClient) API() *APIClient { return c.api }

// Popular implements [Provider].
func (c *TMDBClient) Popular(ctx context.Context, kind models.MediaKind, page int) (*models.Page, error) {
	kind = listingKind(kind)
	q := c.query()
	q.Set("page", strconv.Itoa(max(page, 1)))

	var resp TMDBPage
	if err := c.api.GetJSON(ctx, "/"+string(kind)+"/popular", q, &resp); err != nil {
		return nil, err
	}
	return resp.toPage(kind), nil
}

// Search implements [Provider]. An empty kind searches movies and TV together.
func (c *TMDBClient) Search(ctx context.Context, kind models.MediaKind, query string, page int) (*models.Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}

	path := "/search/multi"
	if kind != "" {
		path = "/search/" + string(kind)
	}

	q := c.query()
	q.Set("query", query)
	q.Set("page", strconv.Itoa(max(page, 1)))

	var resp TMDBPage
	if err := c.api.GetJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	return resp.toPage(kind), nil
}

// Genres implements [Provider].
func (c *TMDBClient) Genres(ctx context.Context, kind models.MediaKind) ([]models.Genre, error) {
	var resp TMDBGenres
	if err := c.api.GetJSON(ctx, "/genre/"+string(listingKind(kind))+"/list", c.query(), &resp); err != nil {
		return nil, err
	}
	return resp.Genres, nil
}

// Details implements [Provider].
func (c *TMDBClient) Details(ctx context.Context, kind models.MediaKind, id string) (*models.Details, error) {
	kind = listingKind(kind)
	path := "/" + string(kind) + "/" + url.PathEscape(id)

	resp, err := c.api.Get(ctx, path, c.query())
	if err != nil {
		return nil, notFound(err, id)
	}

	var item models.CatalogItem
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", shared.ErrAPIRequest, path, err)
	}
	if item.Kind == "" {
		item.Kind = kind
	}

	var extra TMDBDetails
	if err := json.Unmarshal(resp.Body, &extra); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", shared.ErrAPIRequest, path, err)
	}

	details := &models.Details{Item: item, Genres: extra.Genres}
	if len(item.GenreIDs) == 0 {
		for _, g := range extra.Genres {
			details.Item.GenreIDs = append(details.Item.GenreIDs, g.ID)
		}
	}
	switch {
	case extra.Runtime != nil:
		details.Runtime = *extra.Runtime
	case len(extra.EpisodeRunTime) > 0:
		details.Runtime = extra.EpisodeRunTime[0]
	}
	if extra.VoteCount != nil {
		details.VoteCount = *extra.VoteCount
	}
	if extra.Tagline != nil {
		details.Tagline = *extra.Tagline
	}
	if extra.Homepage != nil {
		details.Homepage = *extra.Homepage
	}
	return details, nil
}

// Trailer implements [Provider].
func (c *TMDBClient) Trailer(ctx context.Context, kind models.MediaKind, id string) (*models.Video, bool, error) {
	path := "/" + string(listingKind(kind)) + "/" + url.PathEscape(id) + "/videos"

	var resp TMDBVideos
	if err := c.api.GetJSON(ctx, path, c.query(), &resp); err != nil {
		return nil, false, notFound(err, id)
	}

	video, ok := PickTrailer(resp.Results)
	return video, ok, nil
}

// PosterURL returns the image URL for a poster path at size (e.g. "w500").
func (c *TMDBClient) PosterURL(posterPath, size string) string {
	return PosterURL(c.imageBaseURL, posterPath, size)
}

// PosterURL joins an image base URL, size and poster path. Empty paths yield "".
func PosterURL(imageBaseURL, posterPath, size string) string {
	if posterPath == "" {
		return ""
	}
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}
	if size == "" {
		size = "w500"
	}
	return strings.TrimRight(imageBaseURL, "/") + "/" + size + "/" + strings.TrimLeft(posterPath, "/")
}

// PickTrailer returns the first YouTube video typed "Trailer".
func PickTrailer(videos []models.Video) (*models.Video, bool) {
	for _, v := range videos {
		if v.Type == "Trailer" && v.Site == "YouTube" {
			video := v
			return &video, true
		}
	}
	return nil, false
}

// TitleURL links to a title on the TMDB website.
func TitleURL(kind models.MediaKind, id string) string {
	return "https://www.themoviedb.org/" + string(listingKind(kind)) + "/" + url.PathEscape(id)
}

func (c *TMDBClient) query() url.Values {
	q := url.Values{}
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	if c.language != "" {
		q.Set("language", c.language)
	}
	return q
}

// toPage fills in kind for endpoints that omit media_type and drops people from multi search.
func (p TMDBPage) toPage(kind models.MediaKind) *models.Page {
	results := make([]models.CatalogItem, 0, len(p.Results))
	for _, item := range p.Results {
		if item.Kind == "" {
			if kind == "" {
				continue
			}
			item.Kind = kind
		}
		results = append(results, item)
	}
	return &models.Page{Number: p.Page, TotalPages: p.TotalPages, Results: results}
}

func listingKind(kind models.MediaKind) models.MediaKind {
	if kind == "" {
		return models.KindMovie
	}
	return kind
}

func notFound(err error, id string) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", shared.ErrTitleNotFound, id)
	}
	return err
}
