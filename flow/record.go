package flow

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const recordKeyPrefix = "flow:"

// FlowRecord is the correlation state for one in-flight handshake. It
// lives in the ephemeral store for at most the flow TTL and is read
// back exactly once, on callback.
type FlowRecord struct {
	CorrelationToken  string    `json:"correlation_token"`
	AgentFlowToken    string    `json:"agent_flow_token"`
	OwnerUserID       string    `json:"owner_user_id"`
	Provider          string    `json:"provider"`
	RequestedScope    string    `json:"requested_scope"`
	ScopeLevel        *string   `json:"scope_level,omitempty"`
	VaultSessionToken string    `json:"vault_session_token"`
	RedirectURI       string    `json:"redirect_uri"`
	CreatedAt         time.Time `json:"created_at"`
}

func recordKey(correlationToken string) string {
	return recordKeyPrefix + correlationToken
}

func (r *FlowRecord) encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "[FlowRecord.encode] marshal")
	}
	return data, nil
}

func decodeRecord(data []byte) (*FlowRecord, error) {
	var record FlowRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "[decodeRecord] unmarshal")
	}
	return &record, nil
}
