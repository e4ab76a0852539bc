package kafka

import (
	"encoding/json"
	"time"

	"github.com/trialmesh/aster/pkg/resolution"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Request *resolution.ResolveRequest
}

// ParseResolveRequest parses the message value as a resolution request. A
// missing run_id falls back to the run_id header, then to the message key.
func (m *IncomingMessage) ParseResolveRequest() error {
	var req resolution.ResolveRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return err
	}
	if req.RunID == "" {
		req.RunID = m.Headers["run_id"]
	}
	if req.RunID == "" {
		req.RunID = m.Key
	}
	m.Request = &req
	return nil
}
