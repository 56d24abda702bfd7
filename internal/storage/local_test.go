package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	return s
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "ads_2024-05.arrow")
	content := []byte("shard bytes")
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	objectPath := "ads/ads_2024-05.arrow"
	if err := storage.Upload(ctx, srcPath, objectPath); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	dstPath := filepath.Join(srcDir, "nested", "downloaded.arrow")
	if err := storage.Download(ctx, objectPath, dstPath); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	downloaded, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(downloaded) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", downloaded, content)
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}
	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
}

func TestLocalStorage_ReadWrite(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	if err := storage.Write(ctx, "ads/metadata.json", []byte(`{"months":["2024-05"]}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := storage.Read(ctx, "ads/metadata.json")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != `{"months":["2024-05"]}` {
		t.Errorf("unexpected content %q", data)
	}

	if err := storage.Write(ctx, "ads/metadata.json", []byte(`{}`)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, _ = storage.Read(ctx, "ads/metadata.json")
	if string(data) != `{}` {
		t.Errorf("overwrite not visible, got %q", data)
	}
}

func TestLocalStorage_NotFound(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	if _, err := storage.Read(ctx, "ads/missing.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound from Read, got %v", err)
	}
	err := storage.Download(ctx, "ads/missing.arrow", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound from Download, got %v", err)
	}
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()
	for _, p := range []string{"", "../etc/passwd", "ads/../../x", "ads//x"} {
		if _, err := storage.Read(ctx, p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("path %q: expected ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	for _, p := range []string{"ads/ads_2024-05.arrow", "ads/ads_2024-04.arrow", "ads/metadata.json", "events/user_sku_logs.arrow"} {
		if err := storage.Write(ctx, p, []byte("x")); err != nil {
			t.Fatalf("Write %s failed: %v", p, err)
		}
	}

	got, err := storage.ListObjects(ctx, "ads/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	want := []string{"ads/ads_2024-04.arrow", "ads/ads_2024-05.arrow", "ads/metadata.json"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListObjects = %v, want %v", got, want)
	}

	got, err = storage.ListObjects(ctx, "nothing")
	if err != nil {
		t.Fatalf("ListObjects on missing prefix failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty listing, got %v", got)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	storage := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := storage.Write(ctx, "a", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
