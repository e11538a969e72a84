package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestUploadAndDownload(t *testing.T) {
	store := NewInMemoryBlobStore()

	meta, err := store.Upload(context.Background(), BlobMetadata{
		FileName:    "notes.pdf",
		ContentType: "application/pdf",
		FollowUpID:  "fu-1",
		CreatedBy:   "user-1",
	}, strings.NewReader("pdf content"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if meta.ID == "" {
		t.Error("expected generated ID")
	}
	if meta.Size != int64(len("pdf content")) {
		t.Errorf("unexpected size: %d", meta.Size)
	}
	if meta.Hash == "" {
		t.Error("expected hash to be computed")
	}

	rc, got, err := store.Download(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, []byte("pdf content")) {
		t.Errorf("unexpected content: %q", data)
	}
	if got.FileName != "notes.pdf" {
		t.Errorf("unexpected file name: %q", got.FileName)
	}
}

func TestUploadMissingFileName(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Upload(context.Background(), BlobMetadata{}, strings.NewReader("x"))
	if err != ErrMissingFileName {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
}

func TestUploadDisallowedContentType(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Upload(context.Background(), BlobMetadata{
		FileName:    "evil.exe",
		ContentType: "application/x-msdownload",
	}, strings.NewReader("x"))
	if err != ErrInvalidContentType {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestUploadTooLarge(t *testing.T) {
	store := NewInMemoryBlobStore()
	big := bytes.NewReader(make([]byte, MaxFileSize+1))
	_, err := store.Upload(context.Background(), BlobMetadata{FileName: "big.bin"}, big)
	if err != ErrFileTooLarge {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestDownloadNotFound(t *testing.T) {
	store := NewInMemoryBlobStore()
	if _, _, err := store.Download(context.Background(), "missing"); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta, err := store.Upload(context.Background(), BlobMetadata{FileName: "a.txt", ContentType: "text/plain"}, strings.NewReader("a"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := store.Delete(context.Background(), meta.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), meta.ID); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), meta.ID); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestListByFollowUp(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()

	for _, fu := range []string{"fu-1", "fu-1", "fu-2"} {
		_, err := store.Upload(ctx, BlobMetadata{
			FileName:    "doc.txt",
			ContentType: "text/plain",
			FollowUpID:  fu,
		}, strings.NewReader("data"))
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	list, err := store.ListByFollowUp(ctx, "fu-1")
	if err != nil {
		t.Fatalf("ListByFollowUp: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 attachments for fu-1, got %d", len(list))
	}

	list, err = store.ListByFollowUp(ctx, "fu-3")
	if err != nil {
		t.Fatalf("ListByFollowUp: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no attachments for fu-3, got %d", len(list))
	}
}
