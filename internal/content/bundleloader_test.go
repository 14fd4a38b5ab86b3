package content

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	value string
	err   error
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(f.value)}}, nil
}

type fakeS3 struct {
	objects map[string][]byte
	meta    map[string]string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data)), Metadata: f.meta}, nil
}

type fakeVerifier struct{ err error }

func (f fakeVerifier) VerifySignature(context.Context, []byte, []byte) error { return f.err }

func newTestBundle(t *testing.T) *Bundle {
	t.Helper()
	b, err := CreateBundle(sampleRoot())
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	return b
}

func TestNewBundleLoader_Validation(t *testing.T) {
	if _, err := NewBundleLoader(&fakeSSM{}, &fakeS3{}, BundleLoaderOptions{S3Bucket: "b"}); err == nil {
		t.Fatal("expected error without SSMParam")
	}
	if _, err := NewBundleLoader(&fakeSSM{}, &fakeS3{}, BundleLoaderOptions{SSMParam: "p"}); err == nil {
		t.Fatal("expected error without S3Bucket")
	}
	if _, err := NewBundleLoader(nil, &fakeS3{}, BundleLoaderOptions{SSMParam: "p", S3Bucket: "b"}); err == nil {
		t.Fatal("expected error without clients")
	}
}

func TestBundleKey(t *testing.T) {
	if got := BundleKey("/content/", "abc"); got != "content/abc.tar.gz" {
		t.Fatalf("BundleKey = %q", got)
	}
	if got := BundleKey("", "abc"); got != "abc.tar.gz" {
		t.Fatalf("BundleKey = %q", got)
	}
}

func TestBundleLoader_Load(t *testing.T) {
	b := newTestBundle(t)
	s3c := &fakeS3{
		objects: map[string][]byte{"content/" + b.SHA256 + ".tar.gz": b.Data},
		meta:    map[string]string{MetaKeyVersion: "2024.06.01", MetaKeyReleaseID: "rel-1"},
	}
	l, err := NewBundleLoader(&fakeSSM{value: " " + strings.ToUpper(b.SHA256) + "\n"}, s3c, BundleLoaderOptions{
		SSMParam: "/portfolio/content/current",
		S3Bucket: "bucket",
		S3Prefix: "content",
	})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Meta.SHA256 != b.SHA256 || snap.Meta.Source != SourceS3 {
		t.Fatalf("Meta = %+v", snap.Meta)
	}
	if snap.Meta.Version != "2024.06.01" || snap.Meta.ReleaseID != "rel-1" {
		t.Fatalf("object metadata not carried: %+v", snap.Meta)
	}
	if snap.Meta.Signed {
		t.Fatal("Signed should be false without a verifier")
	}
	if items, err := List(snap.FS, BlogDir); err != nil || len(items) != 1 {
		t.Fatalf("List = %v, %v", items, err)
	}
}

func TestBundleLoader_ChecksumMismatch(t *testing.T) {
	b := newTestBundle(t)
	wrong := strings.Repeat("0", 64)
	s3c := &fakeS3{objects: map[string][]byte{wrong + ".tar.gz": b.Data}}
	l, _ := NewBundleLoader(&fakeSSM{value: wrong}, s3c, BundleLoaderOptions{SSMParam: "p", S3Bucket: "b"})

	_, err := l.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("err = %v, want checksum mismatch", err)
	}
}

func TestBundleLoader_BadParameter(t *testing.T) {
	for _, v := range []string{"", "not-a-hash", strings.Repeat("g", 64)} {
		l, _ := NewBundleLoader(&fakeSSM{value: v}, &fakeS3{}, BundleLoaderOptions{SSMParam: "p", S3Bucket: "b"})
		if _, err := l.FetchCurrentBundleHash(context.Background()); err == nil {
			t.Fatalf("value %q: expected error", v)
		}
	}

	l, _ := NewBundleLoader(&fakeSSM{err: errors.New("throttled")}, &fakeS3{}, BundleLoaderOptions{SSMParam: "p", S3Bucket: "b"})
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected SSM error")
	}
}

func TestBundleLoader_Signature(t *testing.T) {
	b := newTestBundle(t)
	key := b.SHA256 + ".tar.gz"

	tests := []struct {
		name     string
		withSig  bool
		verifier fakeVerifier
		wantErr  bool
	}{
		{"valid", true, fakeVerifier{}, false},
		{"missing sig", false, fakeVerifier{}, true},
		{"bad sig", true, fakeVerifier{err: errors.New("bad")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objs := map[string][]byte{key: b.Data}
			if tt.withSig {
				objs[key+".sig"] = []byte("sig")
			}
			l, _ := NewBundleLoader(&fakeSSM{value: b.SHA256}, &fakeS3{objects: objs}, BundleLoaderOptions{
				SSMParam: "p",
				S3Bucket: "b",
				Verifier: tt.verifier,
			})
			snap, err := l.LoadHash(context.Background(), b.SHA256)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !snap.Meta.Signed {
				t.Fatal("Signed should be true after verification")
			}
		})
	}
}
