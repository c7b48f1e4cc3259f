package cue_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrWong99/grenouille/internal/cue"
)

type recordingPlayer struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingPlayer) PlayFile(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return r.err
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPlayer_PlaysConfiguredFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := cue.Files{On: touch(t, dir, "on.wav"), Done: touch(t, dir, "done.wav"), Unclear: touch(t, dir, "unclear.wav")}
	rec := &recordingPlayer{}
	p := cue.NewPlayer(files, rec)

	p.Play(context.Background(), cue.On)
	p.Play(context.Background(), cue.Unclear)
	p.Play(context.Background(), cue.Done)

	want := []string{files.On, files.Unclear, files.Done}
	if len(rec.paths) != len(want) {
		t.Fatalf("played %v, want %v", rec.paths, want)
	}
	for i := range want {
		if rec.paths[i] != want[i] {
			t.Errorf("play[%d] = %q, want %q", i, rec.paths[i], want[i])
		}
	}
}

func TestPlayer_MissingFileIsSilent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := &recordingPlayer{}
	p := cue.NewPlayer(cue.Files{On: filepath.Join(dir, "missing.wav"), Done: touch(t, dir, "done.wav")}, rec)

	p.Play(context.Background(), cue.On)
	p.Play(context.Background(), cue.Unclear)
	p.Play(context.Background(), cue.Done)

	if len(rec.paths) != 1 || filepath.Base(rec.paths[0]) != "done.wav" {
		t.Errorf("played %v, want only done.wav", rec.paths)
	}
}

func TestPlayer_PlaybackErrorSwallowed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := &recordingPlayer{err: errors.New("no sound card")}
	p := cue.NewPlayer(cue.Files{On: touch(t, dir, "on.wav")}, rec)
	p.Play(context.Background(), cue.On)
	if len(rec.paths) != 1 {
		t.Errorf("expected one attempt, got %d", len(rec.paths))
	}
}

func TestCue_String(t *testing.T) {
	t.Parallel()

	if cue.On.String() != "on" || cue.Done.String() != "done" || cue.Unclear.String() != "unclear" {
		t.Error("unexpected cue names")
	}
	if cue.Cue(9).String() != "cue(9)" {
		t.Errorf("unknown cue = %q", cue.Cue(9).String())
	}
}
