// SPDX-FileCopyrightText: © 2020 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/munnerz/goautoneg"
)

var acceptOffers = []string{
	"text/plain",
	"application/json",
}

// Message is a JSON status message.
type Message struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// negotiate returns the best response content type for the request.
func negotiate(r *http.Request) string {
	if ct := goautoneg.Negotiate(r.Header.Get("Accept"), acceptOffers); ct != "" {
		return ct
	}
	return "text/plain"
}

// Render converts any value to JSON and sends the response.
func Render(w http.ResponseWriter, r *http.Request, status int, value any) {
	b := &bytes.Buffer{}
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		Log(r).Error("encoding error", slog.Any("err", err))
		http.Error(w, http.StatusText(500), 500)
		return
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	if status >= 100 {
		w.WriteHeader(status)
	}
	w.Write(b.Bytes()) // nolint:errcheck
}

// TextMsg sends a message with a status, as JSON or plain text depending
// on the request's Accept header.
func TextMsg(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if negotiate(r) == "application/json" {
		Render(w, r, status, Message{Status: status, Message: msg})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	fmt.Fprintln(w, msg) // nolint:errcheck
}

// Status sends a response with the given status code and its
// standard text.
func Status(w http.ResponseWriter, r *http.Request, status int) {
	TextMsg(w, r, status, http.StatusText(status))
}

// Err renders an error.
// If the error is "classic", it returns a 500 response and logs
// the error.
// If the errors provides a StatusCode() or Log() methods,
// we use them. The message of an error with a status lower than 500
// is sent to the client.
func Err(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		// If the error has a StatusCode() method, use this instead
		status = sc.StatusCode()
	}

	var l interface{ Log(*slog.Logger) }
	if errors.As(err, &l) {
		// If the error has a Log() method, use this instead
		l.Log(Log(r))
	} else {
		Log(r).Error("server error", slog.Any("err", err))
	}

	if status < 500 {
		TextMsg(w, r, status, err.Error())
		return
	}
	Status(w, r, status)
}
