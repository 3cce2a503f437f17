package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// encodeJSON marshals v to a text column value, mapping empty collections to
// an empty string so the column stays NULL-ish and cheap to scan.
func encodeJSON(v any) (string, error) {
	switch t := v.(type) {
	case map[string]json.RawMessage:
		if len(t) == 0 {
			return "", nil
		}
	case []string:
		if len(t) == 0 {
			return "", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal")
	}
	return string(b), nil
}

func decodeResults(s string) (map[string]json.RawMessage, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal results")
	}
	return m, nil
}

func decodeErrors(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var errs []string
	if err := json.Unmarshal([]byte(s), &errs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal errors")
	}
	return errs, nil
}

func encodeConfig(c model.JobConfig) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal config")
	}
	return string(b), nil
}

func decodeConfig(s string) (model.JobConfig, error) {
	var c model.JobConfig
	if s == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return c, eris.Wrap(err, "store: unmarshal config")
	}
	return c, nil
}
