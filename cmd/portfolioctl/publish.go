package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/cryptoutil"
	"github.com/aleaurre/portfolio-web/internal/publish"
)

func newPublishCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Pack the content root and make it the live bundle",
		Long: `publish validates the content root, packs it into a tar.gz bundle named by
its sha256, uploads it to S3, signs the digest with KMS when a key is
given, and finally points the SSM parameter at the new hash. Servers with
content updates enabled pick it up on their next poll.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPublish(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("bucket", "", "S3 bucket for bundles")
	f.String("prefix", "portfolio-web/content/bundles", "S3 key prefix for bundles")
	f.String("ssm-param", "/app/portfolio-web/content/stable/sha256", "SSM parameter holding the live bundle hash")
	f.String("signing-key-arn", "", "KMS key ARN used to sign the bundle digest")
	f.String("bundle-version", "", "version recorded on the bundle, e.g. git describe output")
	f.Bool("dry-run", false, "validate and pack without uploading")
	return cmd
}

func (a *app) runPublish(ctx context.Context) error {
	var (
		s3c    publish.S3API
		ssmc   publish.SSMAPI
		signer publish.Signer
	)
	if !a.conf.DryRun {
		var err error
		if s3c, ssmc, signer, err = a.newPublishClients(ctx, a.conf); err != nil {
			return err
		}
	}

	v := content.DefaultValidationOptions()
	v.Pattern = a.conf.Pattern

	res, err := publish.Publish(ctx, s3c, ssmc, os.DirFS(a.conf.ContentDir), publish.Options{
		Logger:     a.logger,
		Bucket:     a.conf.Bucket,
		Prefix:     a.conf.Prefix,
		SSMParam:   a.conf.SSMParam,
		Version:    a.conf.Version,
		Signer:     signer,
		Validation: &v,
		DryRun:     a.conf.DryRun,
	})
	if err != nil {
		return err
	}

	verb := "published"
	if res.DryRun {
		verb = "packed (dry run)"
	}
	fmt.Fprintf(a.out, "%s %s\n", verb, res.SHA256)
	fmt.Fprintf(a.out, "  key:        %s\n", res.Key)
	fmt.Fprintf(a.out, "  release id: %s\n", res.ReleaseID)
	fmt.Fprintf(a.out, "  files:      %d (%s)\n", res.Files, humanize.Bytes(uint64(res.Bytes)))
	fmt.Fprintf(a.out, "  signed:     %t\n", res.Signed)
	fmt.Fprintf(a.out, "  took:       %s\n", res.Duration.Round(time.Millisecond))
	return nil
}

func awsPublishClients(ctx context.Context, conf settings) (publish.S3API, publish.SSMAPI, publish.Signer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load AWS config: %w", err)
	}
	var signer publish.Signer
	if conf.SigningKeyARN != "" {
		signer = cryptoutil.NewKMSSigner(kms.NewFromConfig(awsCfg), conf.SigningKeyARN)
	}
	return s3.NewFromConfig(awsCfg), ssm.NewFromConfig(awsCfg), signer, nil
}
