// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event is one server-sent event as written to the wire.
type Event struct {
	Name  string        // "event:" field, omitted when empty
	Data  string        // one "data:" line per line of Data
	Retry time.Duration // reconnect delay hint, omitted when zero
}

// JSON builds an event named name carrying v encoded as JSON.
func JSON(name string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s event: %w", name, err)
	}
	return Event{Name: name, Data: string(data)}, nil
}

// String renders e in the text/event-stream format, blank line included.
func (e Event) String() string {
	var sb strings.Builder
	if e.Name != "" {
		sb.WriteString("event: " + e.Name + "\n")
	}
	if e.Retry > 0 {
		sb.WriteString("retry: " + strconv.FormatInt(e.Retry.Milliseconds(), 10) + "\n")
	}
	for line := range strings.SplitSeq(e.Data, "\n") {
		sb.WriteString("data: " + line + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// Heartbeat is a comment line; clients ignore it but proxies see traffic.
const Heartbeat = ": heartbeat\n\n"
