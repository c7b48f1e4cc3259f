package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ResponseType is the "type" field of an assistant reply.
type ResponseType string

const (
	TypeResponse ResponseType = "response"
	TypePython   ResponseType = "python"
	TypeUnclear  ResponseType = "unclear"
)

// ErrNoJSON is returned when a reply contains no parseable JSON value.
var ErrNoJSON = errors.New("chat: no JSON in reply")

// Response is the structured assistant reply.
type Response struct {
	Type     ResponseType `json:"type"`
	Response *string      `json:"response,omitempty"`
	Python   *string      `json:"python,omitempty"`
}

// Speakable returns the text to speak and whether the reply should be spoken
// at all: only replies of type response that carry text are.
func (r Response) Speakable() (string, bool) {
	if r.Type != TypeResponse || r.Response == nil || strings.TrimSpace(*r.Response) == "" {
		return "", false
	}
	return *r.Response, true
}

// ParseResponse extracts the JSON value from content and decodes it. Unknown
// types are rejected.
func ParseResponse(content string) (Response, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return Response{}, err
	}
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, fmt.Errorf("chat: decode reply: %w", err)
	}
	switch r.Type {
	case TypeResponse, TypePython, TypeUnclear:
		return r, nil
	default:
		return Response{}, fmt.Errorf("chat: unknown reply type %q", r.Type)
	}
}

// ExtractJSON returns the JSON value embedded in content. Whichever of '{' or
// '[' appears first decides the kind; the value spans to the last matching
// closing bracket. A single-element array is unwrapped to its element.
func ExtractJSON(content string) (json.RawMessage, error) {
	obj := strings.IndexByte(content, '{')
	arr := strings.IndexByte(content, '[')

	open, closer := obj, byte('}')
	if arr >= 0 && (obj < 0 || arr < obj) {
		open, closer = arr, ']'
	}
	if open < 0 {
		return nil, ErrNoJSON
	}
	end := strings.LastIndexByte(content, closer)
	if end < open {
		return nil, ErrNoJSON
	}
	raw := json.RawMessage(content[open : end+1])
	if !json.Valid(raw) {
		return nil, ErrNoJSON
	}

	if closer == ']' {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err == nil && len(elems) == 1 {
			return elems[0], nil
		}
	}
	return raw, nil
}

// AsTable extracts the first markdown table in content as rows of trimmed
// cells. The header separator row is skipped.
func AsTable(content string) ([][]string, bool) {
	start := strings.IndexByte(content, '|')
	end := strings.LastIndexByte(content, '|')
	if start < 0 || end <= start {
		return nil, false
	}

	var rows [][]string
	for i, line := range strings.Split(content[start:end+1], "\n") {
		if i == 1 {
			continue
		}
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "|")
		line = strings.TrimSuffix(line, "|")
		cells := strings.Split(line, "|")
		for j := range cells {
			cells[j] = strings.TrimSpace(cells[j])
		}
		rows = append(rows, cells)
	}
	return rows, true
}
