package writer

import "encoding/json"

func jsonMarshal(m map[string]any) ([]byte, error) {
	return json.Marshal(m)
}
