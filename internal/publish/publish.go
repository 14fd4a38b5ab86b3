// Package publish uploads a content root as a bundle and points the live
// site at it.
//
// The layout matches what content.BundleLoader reads:
//
//	s3://{bucket}/{prefix}/{sha256}.tar.gz      bundle, version + release id metadata
//	s3://{bucket}/{prefix}/{sha256}.tar.gz.sig  detached signature over the hex digest
//	ssm {param} = {sha256}
package publish

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/google/uuid"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

var ErrInvalidOptions = errors.New("publish: invalid options")

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type SSMAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// Signer signs the bundle digest. Implemented by cryptoutil.KMSSigner.
type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
}

type Options struct {
	Logger log.Logger

	Bucket   string
	Prefix   string
	SSMParam string

	// Version is stored on the bundle object, e.g. a git describe
	Version string

	// Signer is optional; without it no .sig is uploaded
	Signer Signer

	// Validation runs against the root before anything is uploaded. nil
	// uses content.DefaultValidationOptions().
	Validation *content.ValidationOptions

	// DryRun packs and validates but uploads nothing.
	DryRun bool

	newReleaseID func() string
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Validation == nil {
		v := content.DefaultValidationOptions()
		o.Validation = &v
	}
	if o.newReleaseID == nil {
		o.newReleaseID = uuid.NewString
	}
}

func (o *Options) validate() error {
	if o.DryRun {
		return nil
	}
	if o.Bucket == "" {
		return xerrors.Wrap(ErrInvalidOptions, "bucket is required")
	}
	if o.SSMParam == "" {
		return xerrors.Wrap(ErrInvalidOptions, "ssm parameter is required")
	}
	return nil
}

// Result describes a published (or, for dry runs, packed) bundle.
type Result struct {
	SHA256    string        `json:"sha256"`
	Key       string        `json:"key"`
	SigKey    string        `json:"sig_key,omitempty"`
	ReleaseID string        `json:"release_id"`
	Version   string        `json:"version,omitempty"`
	Files     int           `json:"files"`
	Bytes     int           `json:"bytes"`
	Signed    bool          `json:"signed"`
	DryRun    bool          `json:"dry_run"`
	Duration  time.Duration `json:"duration"`
}

// Publish validates and packs root, uploads the bundle (and its signature
// when a Signer is set), then updates the SSM parameter. The parameter is
// written last so watchers never see a hash whose objects are missing.
func Publish(ctx context.Context, s3c S3API, ssmc SSMAPI, root fs.FS, opts Options) (*Result, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if !opts.DryRun && (s3c == nil || ssmc == nil) {
		return nil, xerrors.Wrap(ErrInvalidOptions, "s3 and ssm clients are required")
	}
	start := time.Now()
	L := opts.Logger

	if err := content.ValidateSnapshot(ctx, &content.Snapshot{FS: root}, *opts.Validation); err != nil {
		return nil, xerrors.Wrap(err, "content root failed validation")
	}

	b, err := content.CreateBundle(root)
	if err != nil {
		return nil, xerrors.Wrap(err, "create bundle")
	}

	res := &Result{
		SHA256:    b.SHA256,
		Key:       content.BundleKey(opts.Prefix, b.SHA256),
		ReleaseID: opts.newReleaseID(),
		Version:   opts.Version,
		Files:     b.Files,
		Bytes:     len(b.Data),
		DryRun:    opts.DryRun,
	}
	L = L.With("sha256", b.SHA256, "release_id", res.ReleaseID)

	if opts.DryRun {
		res.Duration = time.Since(start)
		L.Info(ctx, "dry run, nothing uploaded", "files", res.Files, "bytes", res.Bytes)
		return res, nil
	}

	meta := map[string]string{content.MetaKeyReleaseID: res.ReleaseID}
	if opts.Version != "" {
		meta[content.MetaKeyVersion] = opts.Version
	}
	if _, err := s3c.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(opts.Bucket),
		Key:          aws.String(res.Key),
		Body:         bytes.NewReader(b.Data),
		ContentType:  aws.String("application/gzip"),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
		Metadata:     meta,
	}); err != nil {
		return nil, xerrors.Wrapf(err, "put s3://%s/%s", opts.Bucket, res.Key)
	}
	L.Info(ctx, "uploaded content bundle", "bucket", opts.Bucket, "key", res.Key, "bytes", res.Bytes)

	if opts.Signer != nil {
		sig, err := opts.Signer.Sign(ctx, []byte(b.SHA256))
		if err != nil {
			return nil, xerrors.Wrap(err, "sign bundle digest")
		}
		res.SigKey = res.Key + ".sig"
		if _, err := s3c.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(opts.Bucket),
			Key:         aws.String(res.SigKey),
			Body:        bytes.NewReader(sig),
			ContentType: aws.String("application/octet-stream"),
			Metadata:    meta,
		}); err != nil {
			return nil, xerrors.Wrapf(err, "put s3://%s/%s", opts.Bucket, res.SigKey)
		}
		res.Signed = true
		L.Info(ctx, "uploaded bundle signature", "key", res.SigKey)
	}

	if _, err := ssmc.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(opts.SSMParam),
		Value:     aws.String(b.SHA256),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	}); err != nil {
		return nil, xerrors.Wrapf(err, "put SSM parameter %s", opts.SSMParam)
	}

	res.Duration = time.Since(start)
	L.Info(ctx, "content published",
		"ssm_param", opts.SSMParam,
		"signed", res.Signed,
		"duration", res.Duration.String(),
	)
	return res, nil
}
