package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/config"
	"github.com/poolride/carpool/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	geocodeCachePrefix = "geocode:"
	routeCachePrefix   = "route:"
	cacheTTL           = 24 * time.Hour
)

// Coordinates is a geocoded point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Route is a driving distance/duration between two addresses.
type Route struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin int     `json:"duration_min"`
}

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Coordinates, error)
}

// Router computes driving distance and duration between two addresses.
type Router interface {
	RouteDistance(ctx context.Context, origin, dest string) (*Route, error)
}

// Client talks to a Nominatim-style geocoder and an OSRM-style router, with
// redis caching in front of both.
type Client struct {
	geocoderBaseURL string
	routerBaseURL   string
	apiKey          string
	httpClient      *http.Client
	redis           *redis.Client
}

// NewClient creates a geocoding/routing client. The redis client is optional;
// with nil every lookup goes to the provider.
func NewClient(cfg *config.GeoConfig, rdb *redis.Client) *Client {
	return &Client{
		geocoderBaseURL: strings.TrimRight(cfg.GeocoderBaseURL, "/"),
		routerBaseURL:   strings.TrimRight(cfg.RouterBaseURL, "/"),
		apiKey:          cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		redis: rdb,
	}
}

type geocodeResponse struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to coordinates. Returns NotFound when the
// provider has no match for the address.
func (c *Client) Geocode(ctx context.Context, address string) (*Coordinates, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, common.NewValidationError("address is required")
	}

	cacheKey := geocodeCachePrefix + strings.ToLower(address)
	var cached Coordinates
	if c.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	var results []geocodeResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/search?%s", c.geocoderBaseURL, params.Encode()), &results); err != nil {
		return nil, common.NewUpstreamError("geocoding provider unavailable", err)
	}

	if len(results) == 0 {
		return nil, common.NewNotFoundError(fmt.Sprintf("address %q could not be resolved", address), nil)
	}

	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return nil, common.NewUpstreamError("geocoding provider returned malformed coordinates", nil)
	}

	coords := &Coordinates{Latitude: lat, Longitude: lon}
	c.cacheSet(ctx, cacheKey, coords)
	return coords, nil
}

type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // metres
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// RouteDistance computes driving distance (km) and duration (minutes)
// between two addresses. Both addresses are geocoded first.
func (c *Client) RouteDistance(ctx context.Context, origin, dest string) (*Route, error) {
	cacheKey := routeCachePrefix + strings.ToLower(origin) + "|" + strings.ToLower(dest)
	var cached Route
	if c.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	from, err := c.Geocode(ctx, origin)
	if err != nil {
		return nil, err
	}
	to, err := c.Geocode(ctx, dest)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		c.routerBaseURL, from.Longitude, from.Latitude, to.Longitude, to.Latitude)

	var resp osrmRouteResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, common.NewUpstreamError("routing provider unavailable", err)
	}

	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return nil, common.NewUpstreamError("routing provider returned no route", nil)
	}

	route := &Route{
		DistanceKm:  math.Round(resp.Routes[0].Distance/1000*100) / 100,
		DurationMin: int(math.Round(resp.Routes[0].Duration / 60)),
	}
	c.cacheSet(ctx, cacheKey, route)
	return route, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) cacheGet(ctx context.Context, key string, out interface{}) bool {
	if c.redis == nil {
		return false
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}

	return json.Unmarshal(data, out) == nil
}

func (c *Client) cacheSet(ctx context.Context, key string, value interface{}) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, key, data, cacheTTL).Err(); err != nil {
		logger.Debug("failed to cache geo result", zap.String("key", key), zap.Error(err))
	}
}
