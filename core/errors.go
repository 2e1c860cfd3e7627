package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// errorBody is the one JSON error shape every handler returns.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: err.Error()})
}

func httpStatusError(w http.ResponseWriter, status int) {
	writeJSONError(w, status, fmt.Errorf("%s", http.StatusText(status)))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		ShowError("webserver", err)
	}
}
