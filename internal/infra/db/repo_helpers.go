package db

import "encoding/json"

// marshalJSONColumn keeps nil maps as empty strings so a stored-then-
// loaded event serializes canonically to the same bytes it was
// checksummed over.
func marshalJSONColumn(value map[string]any) (string, error) {
	if value == nil {
		return "", nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func unmarshalJSONColumn(column string) (map[string]any, error) {
	if column == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(column), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalStringSlice(values []string) (string, error) {
	if values == nil {
		return "", nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func unmarshalStringSlice(column string) ([]string, error) {
	if column == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(column), &out); err != nil {
		return nil, err
	}
	return out, nil
}
