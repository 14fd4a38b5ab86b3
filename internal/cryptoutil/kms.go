package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	_ "crypto/sha256" // registers crypto.SHA256
	_ "crypto/sha512" // registers crypto.SHA384
	"crypto/x509"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// KMSAPI is the part of the KMS client used here.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// scheme pairs the digest a key type verifies with with the KMS algorithm
// that produces matching signatures.
type scheme struct {
	hash crypto.Hash
	alg  kmstypes.SigningAlgorithmSpec
}

func schemeFor(pub crypto.PublicKey) (scheme, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			return scheme{crypto.SHA256, kmstypes.SigningAlgorithmSpecEcdsaSha256}, nil
		case elliptic.P384():
			return scheme{crypto.SHA384, kmstypes.SigningAlgorithmSpecEcdsaSha384}, nil
		}
		return scheme{}, xerrors.Newf("unsupported ECDSA curve %s", key.Curve.Params().Name)
	case *rsa.PublicKey:
		return scheme{crypto.SHA256, kmstypes.SigningAlgorithmSpecRsassaPssSha256}, nil
	}
	return scheme{}, xerrors.Newf("unsupported public key type %T", pub)
}

func (s scheme) digest(message []byte) []byte {
	h := s.hash.New()
	h.Write(message)
	return h.Sum(nil)
}

// SigningAlgorithm is the KMS algorithm whose signatures verify against pub.
func SigningAlgorithm(pub crypto.PublicKey) (kmstypes.SigningAlgorithmSpec, error) {
	s, err := schemeFor(pub)
	return s.alg, err
}

// kmsKey resolves and remembers the public half of a KMS key. Failed
// lookups are not remembered.
type kmsKey struct {
	client KMSAPI
	arn    string

	mu  sync.Mutex
	pub crypto.PublicKey
}

func (k *kmsKey) public(ctx context.Context) (crypto.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pub != nil {
		return k.pub, nil
	}
	if k.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := k.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(k.arn)})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get public key %s", k.arn)
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("key %s is for %s, not SIGN_VERIFY", k.arn, out.KeyUsage)
	}
	if k.pub, err = x509.ParsePKIXPublicKey(out.PublicKey); err != nil {
		return nil, xerrors.Wrap(err, "parse public key")
	}
	return k.pub, nil
}

// KMSVerifier checks signatures offline against a KMS key's public half.
// Only the key lookup talks to KMS.
type KMSVerifier struct {
	key kmsKey

	// AllowPKCS1v15 accepts RSA PKCS#1 v1.5 signatures as well as PSS.
	AllowPKCS1v15 bool
}

func NewKMSVerifier(client KMSAPI, keyARN string) *KMSVerifier {
	return &KMSVerifier{key: kmsKey{client: client, arn: keyARN}}
}

// PublicKey returns the key, fetching it on first use.
func (v *KMSVerifier) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	return v.key.public(ctx)
}

// VerifySignature checks signature over message. ECDSA keys use the digest
// sized to their curve and RSA keys use SHA-256.
func (v *KMSVerifier) VerifySignature(ctx context.Context, message, signature []byte) error {
	pub, err := v.PublicKey(ctx)
	if err != nil {
		return err
	}
	s, err := schemeFor(pub)
	if err != nil {
		return err
	}
	digest := s.digest(message)

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, signature) {
			return xerrors.Newf("bad %s signature (%s)", key.Curve.Params().Name, s.hash)
		}
		return nil
	default:
		return verifyRSA(key.(*rsa.PublicKey), message, signature, v.AllowPKCS1v15)
	}
}

func verifyRSA(key *rsa.PublicKey, message, signature []byte, pkcs1 bool) error {
	digest := scheme{hash: crypto.SHA256}.digest(message)
	err := rsa.VerifyPSS(key, crypto.SHA256, digest, signature, nil)
	if err == nil {
		return nil
	}
	if !pkcs1 {
		return xerrors.Wrap(err, "RSA-PSS verification")
	}
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest, signature)
}

// KMSSigner signs with a KMS asymmetric key. Signatures verify with a
// KMSVerifier for the same key.
type KMSSigner struct {
	key kmsKey
}

func NewKMSSigner(client KMSAPI, keyARN string) *KMSSigner {
	return &KMSSigner{key: kmsKey{client: client, arn: keyARN}}
}

// Sign has KMS sign message, choosing the algorithm from the key type.
func (s *KMSSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	pub, err := s.key.public(ctx)
	if err != nil {
		return nil, err
	}
	alg, err := SigningAlgorithm(pub)
	if err != nil {
		return nil, err
	}

	out, err := s.key.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.key.arn),
		Message:          message,
		MessageType:      kmstypes.MessageTypeRaw,
		SigningAlgorithm: alg,
	})
	switch {
	case err != nil:
		return nil, xerrors.Wrap(err, "kms sign")
	case len(out.Signature) == 0:
		return nil, xerrors.New("kms sign returned an empty signature")
	}
	return out.Signature, nil
}
