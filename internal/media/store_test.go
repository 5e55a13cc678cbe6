package media

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestStore_SaveRead(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	name, err := store.Save("photo.PNG", bytes.NewReader([]byte("image-bytes")))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasSuffix(name, ".png") {
		t.Errorf("stored name %q should keep the lowercased extension", name)
	}
	if strings.Contains(name, "photo") {
		t.Errorf("stored name %q should not leak the original name", name)
	}

	data, err := store.Read(name)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("read returned %q", data)
	}
}

func TestStore_ReadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Read("no-such-file.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"", "../etc/passwd", "a/b.png"} {
		if _, err := store.Read(name); !errors.Is(err, ErrBadName) {
			t.Errorf("Read(%q): expected ErrBadName, got %v", name, err)
		}
		if err := store.Remove(name); !errors.Is(err, ErrBadName) {
			t.Errorf("Remove(%q): expected ErrBadName, got %v", name, err)
		}
	}
}

func TestStore_RemoveMissingIsNoop(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Remove("gone.ogg"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
