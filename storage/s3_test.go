package storage

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	deletes []string
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// fileHeader builds a real multipart header the way a request would.
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

func TestUploadFile(t *testing.T) {
	fake := &fakeS3{}
	svc := NewStorageServiceWith(fake, "edupath-test", 1024, "pdf,jpg")
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC) }

	obj, err := svc.UploadFile(context.Background(), fileHeader(t, "Passport Scan.PDF", []byte("%PDF-1.4")), "documents", 7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "documents/7/2026/05/"), obj.Key)
	assert.True(t, strings.HasSuffix(obj.Key, ".pdf"))
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, int64(8), obj.Size)
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "edupath-test", aws.StringValue(fake.puts[0].Bucket))
	assert.Nil(t, fake.puts[0].ACL)
	assert.Equal(t, []byte("%PDF-1.4"), fake.bodies[0])
}

func TestUploadFileRejects(t *testing.T) {
	svc := NewStorageServiceWith(&fakeS3{}, "b", 4, "pdf")
	ctx := context.Background()

	_, err := svc.UploadFile(ctx, fileHeader(t, "a.pdf", []byte("too long")), "documents", 1)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = svc.UploadFile(ctx, fileHeader(t, "a.exe", []byte("x")), "documents", 1)
	assert.ErrorIs(t, err, ErrFileTypeRejected)

	_, err = svc.UploadFile(ctx, fileHeader(t, "a.pdf", nil), "documents", 1)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestDeleteAndExtractKey(t *testing.T) {
	fake := &fakeS3{}
	svc := NewStorageServiceWith(fake, "b", 0, "pdf")
	require.NoError(t, svc.DeleteFile(context.Background(), "https://b.s3.ap-southeast-1.amazonaws.com/receipts/3/x.pdf?X-Amz-Signature=abc"))
	assert.Equal(t, []string{"receipts/3/x.pdf"}, fake.deletes)

	assert.Equal(t, "a/b.pdf", ExtractKey("/a/b.pdf"))
	assert.Empty(t, ExtractKey("https://example.com/a.pdf"))
	assert.Error(t, svc.DeleteFile(context.Background(), "https://example.com/a.pdf"))
}

func TestPresignURL(t *testing.T) {
	sess := session.Must(session.NewSession(&aws.Config{
		Region:      aws.String("ap-southeast-1"),
		Credentials: credentials.NewStaticCredentials("AKID", "SECRET", ""),
	}))
	svc := NewStorageServiceWith(s3.New(sess), "edupath-test", 0, "pdf")
	url, err := svc.PresignURL("documents/1/a.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "documents/1/a.pdf")
	assert.Contains(t, url, "X-Amz-Signature=")
}
