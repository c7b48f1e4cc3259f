package chat_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/grenouille/internal/chat"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain object", in: `{"type":"response"}`, want: `{"type":"response"}`},
		{name: "surrounding prose", in: "Sure!\n{\"a\": 1}\nHope that helps.", want: `{"a": 1}`},
		{name: "single element array", in: `[{"a": 1}]`, want: `{"a": 1}`},
		{name: "multi element array", in: `[1, 2]`, want: `[1, 2]`},
		{name: "object before array", in: `{"list": [1]}`, want: `{"list": [1]}`},
		{name: "no json", in: "I cannot help with that.", wantErr: true},
		{name: "truncated", in: `{"type": "response", "response": "cut`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := chat.ExtractJSON(tt.in)
			if tt.wantErr {
				if !errors.Is(err, chat.ErrNoJSON) {
					t.Fatalf("err = %v, want ErrNoJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ExtractJSON = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	r, err := chat.ParseResponse(`Here you go: {"type": "response", "response": "It is noon."}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	text, ok := r.Speakable()
	if !ok || text != "It is noon." {
		t.Errorf("Speakable = (%q, %v), want (It is noon., true)", text, ok)
	}

	r, err = chat.ParseResponse(`{"type": "python", "response": "The answer is: ", "python": "print(5 + 5)"}`)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if r.Python == nil || *r.Python != "print(5 + 5)" {
		t.Errorf("Python = %v", r.Python)
	}
	if _, ok := r.Speakable(); ok {
		t.Error("python reply is speakable, want not")
	}

	if _, err := chat.ParseResponse(`{"type": "shout"}`); err == nil {
		t.Error("expected error for unknown type")
	}
	r, err = chat.ParseResponse(`{"type": "response"}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Speakable(); ok {
		t.Error("response without text is speakable, want not")
	}
}

func TestAsTable(t *testing.T) {
	t.Parallel()

	content := "Here are the planets:\n| Name | Moons |\n|---|---|\n| Earth | 1 |\n| Mars | 2 |\nEnjoy."
	rows, ok := chat.AsTable(content)
	if !ok {
		t.Fatal("AsTable found no table")
	}
	want := [][]string{{"Name", "Moons"}, {"Earth", "1"}, {"Mars", "2"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if !slices.Equal(rows[i], want[i]) {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}

	if _, ok := chat.AsTable("no table here"); ok {
		t.Error("AsTable reported a table in plain text")
	}
}
