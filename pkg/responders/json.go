// Package responders writes JSON success responses.
package responders

import (
	"encoding/json"
	"net/http"
)

// JSON writes payload with status. Balances, supplies and quotes reflect live
// ledger and oracle state, so responses are marked uncacheable.
func JSON(w http.ResponseWriter, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// Created writes a 201 response whose Location names the new resource.
func Created(w http.ResponseWriter, location string, payload any) {
	w.Header().Set("Location", location)
	JSON(w, http.StatusCreated, payload)
}
