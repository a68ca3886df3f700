package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/heatlink/heatlink/pkg/common"
	"github.com/heatlink/heatlink/pkg/log"
	"github.com/heatlink/heatlink/pkg/types"
)

const tokenPath = "oauth/token"

// Client implements the Session interface against the Nibe Uplink REST API.
// It holds an OAuth2 refresh token and exchanges it for short-lived access
// tokens as needed.
type Client struct {
	client       *http.Client
	baseURL      string
	clientID     string
	clientSecret string

	mu            sync.Mutex
	refreshToken  string
	accessToken   string
	tokenExpiry   time.Time
	staticSystems []int
	systemsCache  []int
	systemsExpiry time.Time
}

// NewClient returns a client for the given OAuth2 application credentials.
// If systems is non-empty it is used as the session's system set instead of
// discovering it from the API.
func NewClient(clientID, clientSecret, refreshToken string, systems []int) *Client {
	return &Client{
		client:        common.HTTPClient(time.Minute),
		baseURL:       "https://api.nibeuplink.com",
		clientID:      clientID,
		clientSecret:  clientSecret,
		refreshToken:  refreshToken,
		staticSystems: systems,
	}
}

type tokenResult struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// refreshAccessToken exchanges the refresh token for a new access token.
// Must be called with c.mu held.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	if c.refreshToken == "" {
		return errors.New("missing refresh token")
	}
	if c.clientID == "" || c.clientSecret == "" {
		return errors.New("missing client credentials")
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", c.refreshToken)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	u, err := url.JoinPath(c.baseURL, tokenPath)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).ErrorContext(ctx, "uplink token refresh failed", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return fmt.Errorf("token refresh failed: status %d", resp.StatusCode)
	}

	var res tokenResult
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if res.AccessToken == "" {
		return errors.New("token response missing access token")
	}

	c.accessToken = res.AccessToken
	// the API rotates refresh tokens on every grant
	if res.RefreshToken != "" {
		c.refreshToken = res.RefreshToken
	}
	expiresIn := time.Duration(res.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 5 * time.Minute
	}
	// renew a little early to avoid racing the expiry
	c.tokenExpiry = time.Now().Add(expiresIn - 30*time.Second)

	log.Ctx(ctx).DebugContext(ctx, "uplink access token refreshed", slog.Time("expiry", c.tokenExpiry))
	return nil
}

// ensureToken refreshes the access token if it is missing or expired.
// Must be called with c.mu held.
func (c *Client) ensureToken(ctx context.Context) error {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}
	c.accessToken = ""
	return c.refreshAccessToken(ctx)
}

func (c *Client) newJSONRequest(ctx context.Context, method, endpoint string, params url.Values, data interface{}) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var body io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doRequest sends the request with a bearer token and decodes the JSON
// response into dest when dest is non-nil. An expired token is refreshed and
// the request retried once.
func (c *Client) doRequest(req *http.Request, dest interface{}) error {
	ctx := req.Context()

	// we try up to 2 times because the access token might have expired
	for i := 0; i < 2; i++ {
		if err := c.ensureToken(ctx); err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		// the body was consumed on the first attempt
		if i > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return err
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && c.accessToken != "" {
			log.Ctx(ctx).DebugContext(ctx, "uplink access token expired")
			c.accessToken = ""
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				return fmt.Errorf("uplink api error: status %d", resp.StatusCode)
			}
			log.Ctx(ctx).ErrorContext(ctx, "uplink api error", slog.Int("status", resp.StatusCode), slog.String("body", msg))
			return fmt.Errorf("uplink api error: status %d: %s", resp.StatusCode, msg)
		}

		if dest != nil {
			if err := json.Unmarshal(body, dest); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to decode uplink response", slog.Any("error", err), slog.String("body", string(body)))
				return fmt.Errorf("failed to decode uplink response: %w", err)
			}
		}
		return nil
	}
	return errors.New("uplink request unauthorized after token refresh")
}

type systemsPage struct {
	Page         int            `json:"page"`
	ItemsPerPage int            `json:"itemsPerPage"`
	NumItems     int            `json:"numItems"`
	Objects      []systemObject `json:"objects"`
}

type systemObject struct {
	SystemID    int    `json:"systemId"`
	Name        string `json:"name"`
	ProductName string `json:"productName"`
}

// Systems returns the system identifiers this session can address. A static
// configuration wins over discovery; discovered lists are cached for a
// minute.
func (c *Client) Systems(ctx context.Context) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.staticSystems) > 0 {
		return c.staticSystems, nil
	}
	if time.Now().Before(c.systemsExpiry) {
		return c.systemsCache, nil
	}

	req, err := c.newJSONRequest(ctx, "GET", "api/v1/systems", nil, nil)
	if err != nil {
		return nil, err
	}

	var page systemsPage
	if err := c.doRequest(req, &page); err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}

	ids := make([]int, 0, len(page.Objects))
	for _, obj := range page.Objects {
		ids = append(ids, obj.SystemID)
	}
	c.systemsCache = ids
	c.systemsExpiry = time.Now().Add(time.Minute)

	log.Ctx(ctx).DebugContext(ctx, "uplink systems discovered", slog.Int("count", len(ids)))
	return ids, nil
}

// PutSmarthomeMode sets the smart home operating mode of a system.
func (c *Client) PutSmarthomeMode(ctx context.Context, system int, mode types.SmarthomeMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown smarthome mode %q", mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := c.newJSONRequest(ctx, "PUT", fmt.Sprintf("api/v1/systems/%d/smarthome/mode", system), nil, map[string]interface{}{
		"mode": mode,
	})
	if err != nil {
		return err
	}

	log.Ctx(ctx).InfoContext(ctx, "setting smarthome mode", slog.Int("system", system), slog.String("mode", string(mode)))
	if err := c.doRequest(req, nil); err != nil {
		return fmt.Errorf("failed to set smarthome mode: %w", err)
	}
	return nil
}

// PutParameter writes a named parameter on a system. The API takes a map of
// parameter name to raw value and echoes back the affected parameters.
func (c *Client) PutParameter(ctx context.Context, system int, parameter, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := c.newJSONRequest(ctx, "PUT", fmt.Sprintf("api/v1/systems/%d/parameters", system), nil, map[string]interface{}{
		"settings": map[string]string{parameter: value},
	})
	if err != nil {
		return err
	}

	log.Ctx(ctx).InfoContext(ctx, "setting parameter", slog.Int("system", system), slog.String("parameter", parameter), slog.String("value", value))
	if err := c.doRequest(req, nil); err != nil {
		return fmt.Errorf("failed to set parameter %s: %w", parameter, err)
	}
	return nil
}

// GetParameter reads a named parameter from a system.
func (c *Client) GetParameter(ctx context.Context, system int, parameter string) (types.Parameter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	params := url.Values{}
	params.Set("parameterIds", parameter)

	req, err := c.newJSONRequest(ctx, "GET", fmt.Sprintf("api/v1/systems/%d/parameters", system), params, nil)
	if err != nil {
		return types.Parameter{}, err
	}

	var res []types.Parameter
	if err := c.doRequest(req, &res); err != nil {
		return types.Parameter{}, fmt.Errorf("failed to get parameter %s: %w", parameter, err)
	}
	if len(res) == 0 {
		return types.Parameter{}, fmt.Errorf("parameter %s not found on system %d", parameter, system)
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"read parameter",
		slog.Int("system", system),
		slog.String("parameter", parameter),
		slog.String("displayValue", res[0].DisplayValue),
		slog.Int("rawValue", res[0].RawValue),
	)
	return res[0], nil
}

// PostSmarthomeThermostat publishes a virtual thermostat reading for a system.
func (c *Client) PostSmarthomeThermostat(ctx context.Context, system int, thermostat types.Thermostat) error {
	if err := thermostat.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := c.newJSONRequest(ctx, "POST", fmt.Sprintf("api/v1/systems/%d/smarthome/thermostats", system), nil, thermostat)
	if err != nil {
		return err
	}

	log.Ctx(ctx).DebugContext(ctx, "publishing thermostat", slog.Int("system", system), slog.Int("externalId", thermostat.ExternalID), slog.String("name", thermostat.Name))
	if err := c.doRequest(req, nil); err != nil {
		return fmt.Errorf("failed to publish thermostat %d: %w", thermostat.ExternalID, err)
	}
	return nil
}
