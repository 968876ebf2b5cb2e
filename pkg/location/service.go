// Package location names places from coordinates using a Nominatim server.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	userAgent      = "travel-server/1.0"
)

// Location holds the parts of a place used for display.
type Location struct {
	Name        string
	DisplayName string
	Latitude    float64
	Longitude   float64
	City        string
	Country     string
	Road        string
	Type        string
}

// Label is a short "City, Country" form of the place.
func (l Location) Label() string {
	switch {
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.City != "":
		return l.City
	case l.Name != "":
		return l.Name
	}
	return l.DisplayName
}

// NominatimResponse is shaped for the reverse endpoint.
type NominatimResponse struct {
	PlaceID     int64  `json:"place_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Type        string `json:"type"`
	AddressType string `json:"addresstype"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		Road     string `json:"road"`
		Suburb   string `json:"suburb"`
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		Region   string `json:"region"`
		Postcode string `json:"postcode"`
		Country  string `json:"country"`
	} `json:"address"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the Nominatim server at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Reverse looks up the place at the given coordinates.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Location, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("format", "json")
	params.Set("zoom", "10")
	params.Set("addressdetails", "1")
	params.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var result NominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("no place at %f,%f: %s", lat, lon, result.Error)
	}

	city := result.Address.City
	if city == "" {
		city = result.Address.Town
	}
	if city == "" {
		city = result.Address.Village
	}

	return &Location{
		Name:        result.Name,
		DisplayName: result.DisplayName,
		Latitude:    lat,
		Longitude:   lon,
		City:        city,
		Country:     result.Address.Country,
		Road:        result.Address.Road,
		Type:        result.Type,
	}, nil
}
