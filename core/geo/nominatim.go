package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"
	DefaultUserAgent    = "JanSamwaad-Civic-App/1.0"

	maxResponseBytes = 1 << 20
)

var ErrGeocoderDisabled = errors.New("geocoder disabled")

// Address is the subset of the Nominatim address block used for region
// labels.
type Address struct {
	Neighbourhood string `json:"neighbourhood"`
	Suburb        string `json:"suburb"`
	Residential   string `json:"residential"`
	Village       string `json:"village"`
	Town          string `json:"town"`
	CityDistrict  string `json:"city_district"`
	City          string `json:"city"`
	State         string `json:"state"`
	Postcode      string `json:"postcode"`
	Country       string `json:"country"`
}

type reverseResponse struct {
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
	Error       string  `json:"error"`
}

type NominatimClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	disabled  bool
}

type NominatimOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Disabled  bool
	Client    *http.Client
}

func NewNominatimClient(opts NominatimOptions) *NominatimClient {
	c := &NominatimClient{
		client:    opts.Client,
		baseURL:   strings.TrimSpace(opts.BaseURL),
		userAgent: strings.TrimSpace(opts.UserAgent),
		disabled:  opts.Disabled,
	}
	if c.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		c.client = &http.Client{Timeout: timeout}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultNominatimURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	return c
}

// Reverse looks up the address of a point. Transport failures, non-2xx
// answers and Nominatim error payloads are all returned as errors.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	if c == nil || c.disabled {
		return nil, ErrGeocoderDisabled
	}
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("nominatim url: %w", err)
	}
	q := endpoint.Query()
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}
	var payload reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode nominatim response: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("nominatim: %s", payload.Error)
	}
	return &payload.Address, nil
}
