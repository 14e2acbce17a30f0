package pipeline

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
)

// decodeParams unmarshals raw into dst. Empty input leaves dst unchanged.
// Unknown keys are ignored.
func decodeParams(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return model.Validationf("invalid run parameters: %v", err)
	}
	return nil
}

func encodeParams(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode run parameters")
	}
	return b, nil
}
