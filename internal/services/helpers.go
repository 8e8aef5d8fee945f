package services

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
)

// ensureContext guards against nil contexts from callers outside HTTP handlers.
func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func encodeJSON(data map[string]any) (datatypes.JSON, error) {
	if data == nil {
		return datatypes.JSON("{}"), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodeJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
