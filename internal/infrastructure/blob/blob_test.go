package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestFS_StoreExistsDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Store(ctx, "presupuestos/caso-1/oferta.pdf", "application/pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if ref != "fs://presupuestos/caso-1/oferta.pdf" {
		t.Errorf("ref = %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(root, "presupuestos", "caso-1", "oferta.pdf"))
	if err != nil || string(data) != "%PDF" {
		t.Fatalf("stored file = %q, %v", data, err)
	}

	if ok, err := store.Exists(ctx, ref); err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := store.Exists(ctx, ref); ok {
		t.Error("blob still exists after Delete")
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestFS_KeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	ref, err := store.Store(context.Background(), "../../etc/passwd", "", []byte("x"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if ref != "fs://etc/passwd" {
		t.Errorf("ref = %q", ref)
	}
	if _, err := os.Stat(filepath.Join(root, "etc", "passwd")); err != nil {
		t.Errorf("file not under root: %v", err)
	}

	if _, err := store.Exists(context.Background(), "s3://bucket/x"); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("foreign ref err = %v", err)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	buf := make([]byte, aws.ToInt64(in.ContentLength))
	if _, err := in.Body.Read(buf); err != nil && len(buf) > 0 {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = buf
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_StoreExistsDelete(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	store := NewS3(fake, "docs", "/incidencias/")
	ctx := context.Background()

	ref, err := store.Store(ctx, "justificativos/caso-9/factura.pdf", "application/pdf", []byte("pdf"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if ref != "s3://docs/incidencias/justificativos/caso-9/factura.pdf" {
		t.Errorf("ref = %q", ref)
	}
	if got := fake.types["incidencias/justificativos/caso-9/factura.pdf"]; got != "application/pdf" {
		t.Errorf("content type = %q", got)
	}

	if ok, err := store.Exists(ctx, ref); err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, err := store.Exists(ctx, ref); err != nil || ok {
		t.Errorf("Exists after delete = %v, %v", ok, err)
	}
	if _, err := store.Exists(ctx, "s3://other/key"); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("foreign bucket err = %v", err)
	}
}
