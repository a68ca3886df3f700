package uplink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heatlink/heatlink/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *Client {
	return &Client{
		client:       ts.Client(),
		baseURL:      ts.URL,
		clientID:     "app",
		clientSecret: "secret",
		refreshToken: "refresh-1",
	}
}

func tokenHandler(t *testing.T, w http.ResponseWriter, r *http.Request) {
	require.NoError(t, r.ParseForm())
	assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
	assert.Equal(t, "app", r.Form.Get("client_id"))
	assert.Equal(t, "secret", r.Form.Get("client_secret"))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  "token-123",
		"expires_in":    300,
		"refresh_token": "refresh-2",
		"token_type":    "bearer",
	})
}

func TestClient(t *testing.T) {
	t.Run("TokenRefresh", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/oauth/token" {
				tokenHandler(t, w, r)
				return
			}
			http.Error(w, "not found", 404)
		}))
		defer ts.Close()

		c := newTestClient(ts)
		c.mu.Lock()
		defer c.mu.Unlock()
		err := c.refreshAccessToken(context.Background())
		require.NoError(t, err, "token refresh should succeed")
		assert.Equal(t, "token-123", c.accessToken)
		assert.Equal(t, "refresh-2", c.refreshToken, "rotated refresh token should be stored")
		assert.True(t, c.tokenExpiry.After(time.Now()), "token expiry should be in the future")
	})

	t.Run("PutSmarthomeMode", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/token":
				tokenHandler(t, w, r)
			case "/api/v1/systems/123/smarthome/mode":
				assert.Equal(t, "PUT", r.Method)
				assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "AWAY_FROM_HOME", body["mode"])
				w.WriteHeader(http.StatusOK)
			default:
				http.Error(w, "not found: "+r.URL.Path, 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		err := c.PutSmarthomeMode(context.Background(), 123, types.SmarthomeModeAway)
		require.NoError(t, err)
	})

	t.Run("PutSmarthomeMode rejects unknown mode", func(t *testing.T) {
		c := NewClient("app", "secret", "r", nil)
		err := c.PutSmarthomeMode(context.Background(), 1, "PARTY_MODE")
		assert.Error(t, err, "unknown mode should be rejected before any request")
	})

	t.Run("PutParameter", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/token":
				tokenHandler(t, w, r)
			case "/api/v1/systems/7/parameters":
				assert.Equal(t, "PUT", r.Method)
				var body struct {
					Settings map[string]string `json:"settings"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "20", body.Settings["hot_water_boost"])
				w.WriteHeader(http.StatusOK)
			default:
				http.Error(w, "not found: "+r.URL.Path, 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		err := c.PutParameter(context.Background(), 7, "hot_water_boost", "20")
		require.NoError(t, err)
	})

	t.Run("GetParameter", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/token":
				tokenHandler(t, w, r)
			case "/api/v1/systems/7/parameters":
				assert.Equal(t, "GET", r.Method)
				assert.Equal(t, "outdoor_temp", r.URL.Query().Get("parameterIds"))
				json.NewEncoder(w).Encode([]map[string]interface{}{
					{
						"parameterId":  40004,
						"name":         "outdoor_temp",
						"title":        "outdoor temp.",
						"designation":  "BT1",
						"unit":         "°C",
						"displayValue": "4.2°C",
						"rawValue":     42,
					},
				})
			default:
				http.Error(w, "not found: "+r.URL.Path, 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		p, err := c.GetParameter(context.Background(), 7, "outdoor_temp")
		require.NoError(t, err)
		assert.Equal(t, 40004, p.ParameterID)
		assert.Equal(t, "4.2°C", p.DisplayValue)
		assert.Equal(t, 42, p.RawValue)
	})

	t.Run("GetParameter empty result", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/token":
				tokenHandler(t, w, r)
			default:
				json.NewEncoder(w).Encode([]map[string]interface{}{})
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		_, err := c.GetParameter(context.Background(), 7, "nope")
		assert.Error(t, err, "missing parameter should fail")
	})

	t.Run("PostSmarthomeThermostat", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/token":
				tokenHandler(t, w, r)
			case "/api/v1/systems/1/smarthome/thermostats":
				assert.Equal(t, "POST", r.Method)
				var body types.Thermostat
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, 5, body.ExternalID)
				assert.Equal(t, "x", body.Name)
				require.NotNil(t, body.ActualTemp)
				assert.Equal(t, 213, *body.ActualTemp)
				assert.Nil(t, body.TargetTemp)
				require.NotNil(t, body.ValvePosition)
				assert.Equal(t, 50, *body.ValvePosition)
				assert.Equal(t, []int{1}, body.ClimateSystems)
				w.WriteHeader(http.StatusNoContent)
			default:
				http.Error(w, "not found: "+r.URL.Path, 404)
			}
		}))
		defer ts.Close()

		temp := 21.3
		valve := 50
		c := newTestClient(ts)
		err := c.PostSmarthomeThermostat(context.Background(), 1, types.Thermostat{
			ExternalID:     5,
			Name:           "x",
			ActualTemp:     types.ScaleTemp(&temp),
			TargetTemp:     types.ScaleTemp(nil),
			ValvePosition:  &valve,
			ClimateSystems: []int{1},
		})
		require.NoError(t, err)
	})

	t.Run("RetryOnExpiredToken", func(t *testing.T) {
		var tokenCalls, apiCalls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/token":
				n := tokenCalls.Add(1)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"access_token": map[int32]string{1: "stale", 2: "fresh"}[n],
					"expires_in":   300,
				})
			case "/api/v1/systems/9/smarthome/mode":
				if apiCalls.Add(1) == 1 {
					// first call carries the stale token
					assert.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
				w.WriteHeader(http.StatusOK)
			default:
				http.Error(w, "not found: "+r.URL.Path, 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		err := c.PutSmarthomeMode(context.Background(), 9, types.SmarthomeModeDefault)
		require.NoError(t, err, "request should be retried after re-auth")
		assert.Equal(t, int32(2), apiCalls.Load())
		assert.Equal(t, int32(2), tokenCalls.Load())
	})

	t.Run("SystemsDiscovery", func(t *testing.T) {
		var listCalls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/token":
				tokenHandler(t, w, r)
			case "/api/v1/systems":
				listCalls.Add(1)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"page":         1,
					"itemsPerPage": 100,
					"numItems":     2,
					"objects": []map[string]interface{}{
						{"systemId": 11, "name": "house"},
						{"systemId": 22, "name": "cabin"},
					},
				})
			default:
				http.Error(w, "not found: "+r.URL.Path, 404)
			}
		}))
		defer ts.Close()

		c := newTestClient(ts)
		ids, err := c.Systems(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{11, 22}, ids)

		// second call should hit the cache
		ids, err = c.Systems(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{11, 22}, ids)
		assert.Equal(t, int32(1), listCalls.Load(), "system list should be cached")
	})

	t.Run("StaticSystems", func(t *testing.T) {
		c := NewClient("app", "secret", "r", []int{5})
		ids, err := c.Systems(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{5}, ids, "static systems should skip discovery")
	})
}
