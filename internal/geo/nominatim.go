// Package geo implements address geocoding against the Nominatim search API.
package geo

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pagecraft/commerce/internal/domain/order"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// ErrNoResult is returned when the query matches nothing.
var ErrNoResult = errors.New("no geocoding result")

var _ order.Geocoder = (*Nominatim)(nil)

// Nominatim geocodes free-form address lines. Lookups are best-effort for
// callers, so the client keeps a short timeout and never retries.
type Nominatim struct {
	baseURL string
	client  *http.Client
}

// NewNominatim returns a client for the given base URL, or the public
// instance when empty.
func NewNominatim(baseURL string) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Nominatim{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Geocode resolves an address line to a coordinate using the first search
// hit.
func (n *Nominatim) Geocode(ctx context.Context, line string) (order.Point, error) {
	q := url.Values{}
	q.Set("q", line)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return order.Point{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", "commerce-geocoder")

	resp, err := n.client.Do(req)
	if err != nil {
		return order.Point{}, errors.Wrap(err, "geocode request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return order.Point{}, errors.Errorf("geocode status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return order.Point{}, errors.Wrap(err, "read response")
	}

	return parseSearchResponse(body)
}

// parseSearchResponse extracts the first hit's coordinate. Nominatim encodes
// lat and lon as strings.
func parseSearchResponse(body []byte) (order.Point, error) {
	var (
		pt    order.Point
		found bool
	)
	d := jx.DecodeBytes(body)
	if err := d.Arr(func(d *jx.Decoder) error {
		if found {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "lat":
				s, err := d.Str()
				if err != nil {
					return err
				}
				pt.Lat, err = strconv.ParseFloat(s, 64)
				if err != nil {
					return errors.Wrap(err, "parse lat")
				}
				found = true
				return nil
			case "lon":
				s, err := d.Str()
				if err != nil {
					return err
				}
				pt.Lon, err = strconv.ParseFloat(s, 64)
				if err != nil {
					return errors.Wrap(err, "parse lon")
				}
				found = true
				return nil
			default:
				return d.Skip()
			}
		})
	}); err != nil {
		return order.Point{}, errors.Wrap(err, "decode response")
	}
	if !found {
		return order.Point{}, ErrNoResult
	}
	return pt, nil
}
