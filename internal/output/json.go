package output

import (
	"encoding/json"

	"github.com/sentri-project/sentri/internal/model"
)

func RenderJSON(rec model.Record) (string, error) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
