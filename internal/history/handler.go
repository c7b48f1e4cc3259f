package history

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const defaultPageSize = 50

type turnJSON struct {
	At        time.Time `json:"at"`
	Prompt    string    `json:"prompt"`
	Reply     string    `json:"reply,omitempty"`
	ReplyType string    `json:"reply_type,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	SpokenMS  int64     `json:"spoken_ms"`
	STTMS     int64     `json:"stt_ms"`
	LLMMS     int64     `json:"llm_ms"`
	TTSMS     int64     `json:"tts_ms"`
	Truncated bool      `json:"truncated,omitempty"`
}

// Handler serves GET /history. Query parameters: n (page size, default 50)
// and q (search term). Responses are JSON arrays, oldest first.
func Handler(s Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := defaultPageSize
		if v := r.URL.Query().Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				http.Error(w, "n must be a positive integer", http.StatusBadRequest)
				return
			}
			n = parsed
		}

		var (
			turns []Turn
			err   error
		)
		if q := r.URL.Query().Get("q"); q != "" {
			turns, err = s.Search(r.Context(), q, n)
		} else {
			turns, err = s.Recent(r.Context(), n)
		}
		if err != nil {
			slog.Error("history: query failed", "err", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}

		out := make([]turnJSON, len(turns))
		for i, t := range turns {
			out[i] = turnJSON{
				At:        t.At,
				Prompt:    t.Prompt,
				Reply:     t.Reply,
				ReplyType: t.ReplyType,
				Outcome:   t.Outcome,
				Error:     t.Error,
				SpokenMS:  t.SpokenFor.Milliseconds(),
				STTMS:     t.STTDuration.Milliseconds(),
				LLMMS:     t.LLMDuration.Milliseconds(),
				TTSMS:     t.TTSDuration.Milliseconds(),
				Truncated: t.Truncated,
			}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			slog.Warn("history: encode response", "err", err)
		}
	})
}
