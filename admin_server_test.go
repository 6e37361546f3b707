package parley

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAdmin(t *testing.T, node *Node) *AdminServer {
	t.Helper()
	as, err := NewAdminServer(node, "127.0.0.1:0")
	require.NoError(t, err)
	as.Start()
	t.Cleanup(as.Stop)
	return as
}

func adminGet(t *testing.T, as *AdminServer, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s%s", as.Addr(), path))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestAdminServer_Peers(t *testing.T) {
	node := startNode(t, "srv", WithListenAddr("127.0.0.1:0"))
	as := startAdmin(t, node)

	_, _ = dialNode(t, node.Addr(), "SETUP:alice:9001")
	require.Eventually(t, func() bool { return node.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)

	status, body := adminGet(t, as, "/peers")
	require.Equal(t, http.StatusOK, status)

	var resp struct {
		Node  string `json:"node"`
		Peers []struct {
			Name     string `json:"name"`
			PeerPort int    `json:"peer_port"`
		} `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "srv", resp.Node)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "alice", resp.Peers[0].Name)
	assert.Equal(t, 9001, resp.Peers[0].PeerPort)
}

func TestAdminServer_Healthz(t *testing.T) {
	node := startNode(t, "srv", WithListenAddr("127.0.0.1:0"))
	as := startAdmin(t, node)

	status, body := adminGet(t, as, "/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestAdminServer_Metrics(t *testing.T) {
	node := startNode(t, "srv", WithListenAddr("127.0.0.1:0"))
	as := startAdmin(t, node)

	_, _ = dialNode(t, node.Addr(), "USERNAME:alice")
	require.Eventually(t, func() bool { return node.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)

	status, body := adminGet(t, as, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "parley_connections 1")
}

func TestAdminServer_PeersRejectsNonGet(t *testing.T) {
	node := startNode(t, "srv")
	as := startAdmin(t, node)

	resp, err := http.Post(fmt.Sprintf("http://%s/peers", as.Addr()), "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
