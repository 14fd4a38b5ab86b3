package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/aleaurre/portfolio-web/internal/cryptoutil"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// Object metadata keys written by publish and read back on load.
const (
	MetaKeyVersion   = "content-version"
	MetaKeyReleaseID = "release-id"
)

// maxSignatureSize bounds the detached .sig object.
const maxSignatureSize = 16 * 1024

// SSMAPI is the subset of the SSM client used to resolve the current bundle.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// S3API is the subset of the S3 client used to fetch bundles.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SignatureVerifier checks a detached signature over a bundle digest.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

type BundleLoaderOptions struct {
	Logger log.Logger

	// SSM parameter holding the sha256 of the current bundle
	SSMParam string

	// bundles live at s3://{S3Bucket}/{S3Prefix}/{sha256}.tar.gz
	S3Bucket string
	S3Prefix string

	// Verifier, when set, requires {sha256}.tar.gz.sig next to the bundle
	Verifier SignatureVerifier
}

// BundleLoader fetches content bundles published to S3.
type BundleLoader struct {
	ssmParam string
	bucket   string
	prefix   string
	ssm      SSMAPI
	s3       S3API
	verifier SignatureVerifier
	logger   log.Logger
}

// NewBundleLoader builds a loader from configured AWS clients.
func NewBundleLoader(ssmClient SSMAPI, s3Client S3API, opts BundleLoaderOptions) (*BundleLoader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if ssmClient == nil || s3Client == nil {
		return nil, xerrors.New("ssm and s3 clients are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &BundleLoader{
		ssmParam: opts.SSMParam,
		bucket:   opts.S3Bucket,
		prefix:   strings.Trim(opts.S3Prefix, "/"),
		ssm:      ssmClient,
		s3:       s3Client,
		verifier: opts.Verifier,
		logger:   opts.Logger,
	}, nil
}

// FetchCurrentBundleHash gets the current bundle hash from SSM
func (l *BundleLoader) FetchCurrentBundleHash(ctx context.Context) (string, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.ssmParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.ssmParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.ssmParam)
	}

	hash := strings.ToLower(strings.TrimSpace(*out.Parameter.Value))
	if !validSHA256(hash) {
		return "", xerrors.Newf("SSM parameter %s does not hold a sha256 hex digest", l.ssmParam)
	}
	return hash, nil
}

// BundleKey returns the object key for a bundle hash under prefix.
func BundleKey(prefix, hash string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		return fmt.Sprintf("%s/%s.tar.gz", prefix, hash)
	}
	return hash + ".tar.gz"
}

// LoadHash fetches, verifies and extracts the bundle with the given hash
func (l *BundleLoader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()
	key := BundleKey(l.prefix, hash)

	l.logger.Info(ctx, "downloading content bundle",
		"bucket", l.bucket,
		"key", key,
		"expected_hash", shortHash(hash),
	)

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.bucket, key)
	}
	data, actual, err := readWithHash(out.Body, maxBundleSize)
	out.Body.Close()
	if err != nil {
		return nil, xerrors.Wrap(err, "download bundle")
	}

	if !cryptoutil.HashEqual(actual, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actual)
	}

	signed := false
	if l.verifier != nil {
		if err := l.verifySignature(ctx, key, hash); err != nil {
			return nil, err
		}
		signed = true
	}

	fsys, err := extractBundle(data)
	if err != nil {
		return nil, xerrors.Wrap(err, "extract bundle")
	}

	l.logger.Info(ctx, "loaded content bundle",
		"hash", shortHash(hash),
		"bytes", len(data),
		"signed", signed,
	)

	return &Snapshot{
		FS: fsys,
		Meta: Meta{
			SHA256:     hash,
			Version:    out.Metadata[MetaKeyVersion],
			ReleaseID:  out.Metadata[MetaKeyReleaseID],
			Source:     SourceS3,
			VerifiedAt: time.Now().UTC(),
			Signed:     signed,
		},
		LoadedAt: loadedAt,
	}, nil
}

// verifySignature fetches {key}.sig and checks it over the hex digest.
func (l *BundleLoader) verifySignature(ctx context.Context, key, hash string) error {
	sigKey := key + ".sig"
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(sigKey),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return xerrors.Newf("bundle signature s3://%s/%s is missing", l.bucket, sigKey)
		}
		return xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.bucket, sigKey)
	}
	sig, _, err := readWithHash(out.Body, maxSignatureSize)
	out.Body.Close()
	if err != nil {
		return xerrors.Wrap(err, "download bundle signature")
	}

	if err := l.verifier.VerifySignature(ctx, []byte(hash), sig); err != nil {
		return xerrors.Wrap(err, "verify bundle signature")
	}
	return nil
}

// Load fetches the current release
func (l *BundleLoader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentBundleHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}

func validSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
