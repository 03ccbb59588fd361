// Package fleet implements ports.FleetClient against a Technitium-style DNS
// server management API: one HTTP round-trip per operation, an API token
// appended to every query, and a "status":"ok" envelope on success.
package fleet

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/monstermuffin/technisync/internal/domain"
	"github.com/monstermuffin/technisync/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Client is a FleetClient for one Technitium-compatible server.
type Client struct {
	name      string
	serverURL string
	apiKey    string
	client    *http.Client
	logger    *slog.Logger
}

// New builds a Client for a single managed server. verifyTLS controls
// certificate verification; cmd/technisync passes false (there is no
// configuration option for it) because these deployments are commonly
// self-signed.
func New(name, serverURL, apiKey string, verifyTLS bool, logger *slog.Logger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifyTLS}, //nolint:gosec // verification is off unless the caller passes verifyTLS
	}
	return &Client{
		name:      name,
		serverURL: serverURL,
		apiKey:    apiKey,
		client:    &http.Client{Transport: transport, Timeout: defaultTimeout},
		logger:    logger,
	}
}

type apiResponse struct {
	Status   string          `json:"status"`
	ErrorMsg string          `json:"errorMessage"`
	Response json.RawMessage `json:"response"`
}

func (c *Client) call(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)

	reqURL := fmt.Sprintf("%s/api/%s?%s", c.serverURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.FleetRequestsTotal.WithLabelValues(c.name, endpoint, "error").Inc()
		return nil, fmt.Errorf("%s: request to %s failed: %w", c.name, endpoint, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("closing response body", "server", c.name, "endpoint", endpoint, "error", cerr)
		}
	}()
	metrics.FleetRequestDuration.WithLabelValues(c.name, endpoint).Observe(duration.Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FleetRequestsTotal.WithLabelValues(c.name, endpoint, "error").Inc()
		return nil, fmt.Errorf("%s: read response from %s: %w", c.name, endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.FleetRequestsTotal.WithLabelValues(c.name, endpoint, "error").Inc()
		return nil, fmt.Errorf("%s: %s returned HTTP %d", c.name, endpoint, resp.StatusCode)
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		metrics.FleetRequestsTotal.WithLabelValues(c.name, endpoint, "error").Inc()
		return nil, fmt.Errorf("%s: decode response from %s: %w", c.name, endpoint, err)
	}
	if decoded.Status != "ok" {
		metrics.FleetRequestsTotal.WithLabelValues(c.name, endpoint, "error").Inc()
		return nil, fmt.Errorf("%s: %s returned status %q: %s", c.name, endpoint, decoded.Status, decoded.ErrorMsg)
	}

	metrics.FleetRequestsTotal.WithLabelValues(c.name, endpoint, "ok").Inc()
	return decoded.Response, nil
}

// GetZones lists every zone name the server currently hosts.
func (c *Client) GetZones(ctx context.Context) ([]string, error) {
	raw, err := c.call(ctx, "zones/list", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Zones []struct {
			Name string `json:"name"`
		} `json:"zones"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%s: decode zones/list response: %w", c.name, err)
	}
	names := make([]string, 0, len(payload.Zones))
	for _, z := range payload.Zones {
		names = append(names, z.Name)
	}
	return names, nil
}

// CreateZone creates a primary zone. Idempotent in practice: the upstream
// returns an error status for an existing zone, which callers already
// treat as "skip and continue".
func (c *Client) CreateZone(ctx context.Context, zone string) error {
	params := url.Values{"zone": {zone}, "type": {"Primary"}}
	_, err := c.call(ctx, "zones/create", params)
	return err
}

// GetRecords lists every record in zone.
func (c *Client) GetRecords(ctx context.Context, zone string) ([]domain.Record, error) {
	params := url.Values{"domain": {zone}, "listZone": {"true"}}
	raw, err := c.call(ctx, "zones/records/get", params)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Records []struct {
			Name   string            `json:"name"`
			Type   string            `json:"type"`
			TTL    int               `json:"ttl"`
			RData  map[string]any    `json:"rData"`
		} `json:"records"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%s: decode zones/records/get response: %w", c.name, err)
	}
	records := make([]domain.Record, 0, len(payload.Records))
	for _, rec := range payload.Records {
		records = append(records, domain.Record{
			Name:  rec.Name,
			Type:  domain.RecordType(rec.Type),
			TTL:   rec.TTL,
			RData: stringifyRData(rec.RData),
		})
	}
	return records, nil
}

func stringifyRData(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}

// domainFor substitutes the zone apex for the "@" sentinel name, the
// convention the upstream API uses for apex records.
func domainFor(zone string, name string) string {
	if name == "@" {
		return zone
	}
	return name
}

// AddRecord adds record to zone.
func (c *Client) AddRecord(ctx context.Context, zone string, record domain.Record) error {
	params := url.Values{
		"domain": {domainFor(zone, record.Name)},
		"zone":   {zone},
		"type":   {string(record.Type)},
		"ttl":    {strconv.Itoa(record.TTL)},
	}
	addRData(params, record.Type, record.RData, "")
	_, err := c.call(ctx, "zones/records/add", params)
	return err
}

// UpdateRecord replaces old with updated within zone. The upstream update
// call takes both the current rdata and the new rdata, with new fields
// prefixed "new".
func (c *Client) UpdateRecord(ctx context.Context, zone string, old, updated domain.Record) error {
	params := url.Values{
		"domain": {domainFor(zone, old.Name)},
		"zone":   {zone},
		"type":   {string(old.Type)},
		"newTtl": {strconv.Itoa(updated.TTL)},
	}
	addRData(params, old.Type, old.RData, "")
	addRData(params, updated.Type, updated.RData, "new")
	_, err := c.call(ctx, "zones/records/update", params)
	return err
}

// DeleteRecord removes record from zone.
func (c *Client) DeleteRecord(ctx context.Context, zone string, record domain.Record) error {
	params := url.Values{
		"domain": {domainFor(zone, record.Name)},
		"zone":   {zone},
		"type":   {string(record.Type)},
	}
	addRData(params, record.Type, record.RData, "")
	_, err := c.call(ctx, "zones/records/delete", params)
	return err
}

// addRData maps a record's rdata onto the wire field names for its type,
// optionally prefixed (used by update's "new" fields). This is the sole
// point where record semantics leak into the wire format.
func addRData(params url.Values, t domain.RecordType, rdata map[string]string, prefix string) {
	field := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + capitalize(name)
	}
	switch t {
	case domain.TypeA, domain.TypeAAAA:
		params.Set(field("ipAddress"), rdata["ipAddress"])
	case domain.TypeCNAME:
		params.Set(field("cname"), rdata["cname"])
	case domain.TypeMX:
		params.Set(field("preference"), rdata["preference"])
		params.Set(field("exchange"), rdata["exchange"])
	case domain.TypeNS:
		params.Set(field("nameServer"), rdata["nameServer"])
	case domain.TypeTXT:
		params.Set(field("text"), rdata["text"])
	case domain.TypeSOA:
		for _, f := range []string{"primaryNameServer", "responsiblePerson", "serial", "refresh", "retry", "expire", "minimum"} {
			params.Set(field(f), rdata[f])
		}
	case domain.TypePTR:
		params.Set(field("ptrName"), rdata["ptrName"])
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}

// GetDHCPScopes lists the server's configured DHCP scopes.
func (c *Client) GetDHCPScopes(ctx context.Context) ([]domain.DHCPScope, error) {
	raw, err := c.call(ctx, "dhcp/scopes/list", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Scopes []struct {
			Name           string `json:"name"`
			NetworkAddress string `json:"networkAddress"`
			SubnetMask     string `json:"subnetMask"`
		} `json:"scopes"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%s: decode dhcp/scopes/list response: %w", c.name, err)
	}
	scopes := make([]domain.DHCPScope, 0, len(payload.Scopes))
	for _, s := range payload.Scopes {
		scopes = append(scopes, domain.DHCPScope{
			Name:           s.Name,
			NetworkAddress: s.NetworkAddress,
			SubnetMask:     s.SubnetMask,
		})
	}
	return scopes, nil
}
