package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heatlink/heatlink/pkg/notify"
	"github.com/heatlink/heatlink/pkg/publisher"
	"github.com/heatlink/heatlink/pkg/storage"
	"github.com/heatlink/heatlink/pkg/uplink"
	"github.com/stretchr/testify/require"
)

// newTestServer builds a Server with an in-memory database, the given uplink
// session registered and auth bypassed.
func newTestServer(t *testing.T, session uplink.Session) (*Server, *storage.Memory) {
	reg := uplink.NewRegistry()
	if session != nil {
		reg.SetSession("test", session)
	}
	db := storage.NewMemory()
	pub := publisher.New(reg, time.Hour)
	t.Cleanup(pub.Stop)
	return &Server{
		registry:   reg,
		storage:    db,
		publisher:  pub,
		notifier:   notify.NewStoreNotifier(db),
		bypassAuth: true,
	}, db
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	bodyBytes, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(w, req)
	return w
}

func getReq(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(w, req)
	return w
}
