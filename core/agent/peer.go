package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/akfldk1028/ARR-sub002/core/collab"
)

// PeerClient talks to another agent's A2A endpoint over HTTP. It satisfies
// collab.Peer.
type PeerClient struct {
	baseURL string
	client  *http.Client
}

// NewPeerClient points at a peer agent's base URL (scheme and host, no
// trailing slash).
func NewPeerClient(baseURL string, timeout time.Duration) *PeerClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PeerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *PeerClient) Search(ctx context.Context, q collab.PeerQuery) (collab.PeerResponse, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return collab.PeerResponse{}, fmt.Errorf("marshal peer query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/a2a", bytes.NewReader(body))
	if err != nil {
		return collab.PeerResponse{}, fmt.Errorf("build peer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return collab.PeerResponse{}, fmt.Errorf("peer search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return collab.PeerResponse{}, fmt.Errorf("peer returned %d: %s", resp.StatusCode, payload)
	}

	var peerResp collab.PeerResponse
	if err := json.NewDecoder(resp.Body).Decode(&peerResp); err != nil {
		return collab.PeerResponse{}, fmt.Errorf("decode peer response: %w", err)
	}
	return peerResp, nil
}
