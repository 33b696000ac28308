package clusterconfig

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zeroshot-dev/zeroshot/pkg/contextpack"
)

// Decode parses raw JSON into a Config, rejecting unknown fields anywhere in
// the document. Spec §9: "Unknown keys MUST be rejected (forward-compat
// boundary)."
func Decode(raw []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, newConfigError("", "", fmt.Errorf("decode cluster config: %w", err))
	}
	return &cfg, nil
}

func contextpackPriority(p string) contextpack.Priority {
	switch p {
	case string(contextpack.PriorityRequired), string(contextpack.PriorityHigh),
		string(contextpack.PriorityMedium), string(contextpack.PriorityLow):
		return contextpack.Priority(p)
	default:
		return ""
	}
}
