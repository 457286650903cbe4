package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/federation"
	"github.com/cotoami/cotoami-go/internal/supervisor"
	"github.com/cotoami/cotoami-go/internal/transport"
)

// newDialer builds the supervisor.Dialer this node uses to log into a
// parent/server peer: decrypt the stored password, exchange it for a
// session token over plain HTTP, then upgrade to WebSocket (or fall back
// to SSE when disabled or refused). Grounded on spec.md §4.6-§4.7: the
// handshake itself is a pair of ordinary HTTP calls, only the replication
// stream that follows needs a persistent connection.
func newDialer(localNodeID, ownerPassword string, enableWebSocket bool, maxMessageSize int64) supervisor.Dialer {
	client := &http.Client{Timeout: 15 * time.Second}

	return func(ctx context.Context, sn entity.ServerNode) (transport.Conn, transport.Kind, error) {
		password, err := federation.DecryptPassword(ownerPassword, sn.EncryptedPassword)
		if err != nil {
			return nil, transport.KindWebSocket, fmt.Errorf("dialer: decrypt stored password: %w", err)
		}

		token, err := login(ctx, client, sn.URLPrefix, localNodeID, password)
		if err != nil {
			return nil, transport.KindWebSocket, err
		}

		header := http.Header{}
		header.Set("X-Cotoami-Client-Node", localNodeID)
		header.Set("X-Cotoami-Client-Token", token)
		header.Set("X-Requested-With", "cotoamid")

		if enableWebSocket {
			wsURL := toWebSocketURL(sn.URLPrefix) + "/api/changes/ws"
			conn, err := transport.DialWebSocket(ctx, wsURL, header, maxMessageSize)
			if err == nil {
				return conn, transport.KindWebSocket, nil
			}
		}

		conn, err := transport.DialSSE(ctx, client,
			sn.URLPrefix+"/api/changes/sse", sn.URLPrefix+"/api/changes/requests", header)
		if err != nil {
			return nil, transport.KindSSE, fmt.Errorf("dialer: connect to %s: %w", sn.URLPrefix, err)
		}
		return conn, transport.KindSSE, nil
	}
}

// login exchanges nodeID/password for a session token via the peer's
// /api/sessions endpoint, the unauthenticated bootstrap call every child
// makes before it can open a replication stream.
func login(ctx context.Context, client *http.Client, urlPrefix, nodeID, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"node_id": nodeID, "password": password})
	if err != nil {
		return "", fmt.Errorf("dialer: encode login body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlPrefix+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dialer: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "cotoamid")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dialer: login request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
		Err   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("dialer: decode login response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return "", &supervisor.ConnError{Kind: supervisor.ErrAuthExpired, Err: fmt.Errorf("dialer: login rejected: %s", out.Err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dialer: login failed with status %d: %s", resp.StatusCode, out.Err)
	}
	return out.Token, nil
}

func toWebSocketURL(urlPrefix string) string {
	switch {
	case strings.HasPrefix(urlPrefix, "https://"):
		return "wss://" + strings.TrimPrefix(urlPrefix, "https://")
	case strings.HasPrefix(urlPrefix, "http://"):
		return "ws://" + strings.TrimPrefix(urlPrefix, "http://")
	default:
		return urlPrefix
	}
}
