package server

import (
	"encoding/json"

	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
)

func storageViz(id, payload string) storage.Visualization {
	return storage.Visualization{ID: id, VizType: "bar", Payload: json.RawMessage(payload)}
}
