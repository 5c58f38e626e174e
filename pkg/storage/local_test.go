package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLocalStorageUploadAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://localhost:8080/receipts/")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	resp, err := store.Upload(ctx, &UploadRequest{
		Key:         "receipts/s1/note.pdf",
		Reader:      strings.NewReader("sales note"),
		ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.Size != int64(len("sales note")) {
		t.Errorf("size = %d", resp.Size)
	}
	if resp.URL != "http://localhost:8080/receipts/receipts/s1/note.pdf" {
		t.Errorf("url = %q", resp.URL)
	}

	data, err := os.ReadFile(filepath.Join(dir, "receipts", "s1", "note.pdf"))
	if err != nil || string(data) != "sales note" {
		t.Fatalf("stored file = %q, %v", data, err)
	}

	if url, err := store.GetURL(ctx, "receipts/s1/note.pdf", time.Minute); err != nil || url != resp.URL {
		t.Errorf("GetURL = %q, %v", url, err)
	}

	if err := store.Delete(ctx, "receipts/s1/note.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "receipts", "s1", "note.pdf")); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if err := store.Delete(ctx, "receipts/s1/note.pdf"); err != nil {
		t.Fatalf("deleting a missing file should succeed: %v", err)
	}
}

func TestLocalStorageKeepsKeysInsideBase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://x")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := store.Upload(context.Background(), &UploadRequest{Key: "../../escape.txt", Reader: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(resp.Location, dir) {
		t.Errorf("file written outside base path: %s", resp.Location)
	}
}
