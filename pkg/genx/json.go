package genx

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
)

// unmarshalJSON unmarshals JSON data into v. Models often emit almost-JSON
// arguments (trailing commas, single quotes, cut-off objects), so on a
// syntax error the input is repaired and decoded again.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// NewCallID returns a tool call id for calls the model did not name.
func NewCallID() string {
	return "call_" + uuid.NewString()
}
