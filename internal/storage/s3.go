package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Bucket     string
	Region     string
	Endpoint   string // 空の場合はAWS標準エンドポイント。MinIO等ではURLを指定する
	AccessKey  string // 空の場合はSDKのデフォルト認証チェーンを使う
	SecretKey  string
	PublicRead bool          // バケットが公開読み取り可能かどうか
	Expiry     time.Duration // 署名URLの既定有効期限
}

// S3Store はAWS SDK v2によるBlobStore実装。
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	cfg       S3Config
}

// NewS3Store はS3Storeを生成する。
// AccessKeyが指定された場合は静的クレデンシャル、未指定の場合はSDKのデフォルトチェーンを使う。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// MinIO等のS3互換エンドポイントはパススタイルでアクセスする
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
	}, nil
}

// CreateUploadTarget はPutObjectの署名付きURLを発行する。
func (s *S3Store) CreateUploadTarget(ctx context.Context, key, contentType string, expiry time.Duration) (*UploadTarget, error) {
	if expiry <= 0 {
		expiry = s.cfg.Expiry
	}

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign put object: %w", err)
	}

	target := &UploadTarget{
		UploadURL: req.URL,
		ObjectKey: key,
	}
	if s.cfg.PublicRead {
		target.PublicURL = s.publicURL(key)
	}

	return target, nil
}

// Upload はバイト列を永続ストレージへ書き込み、取得用URLを返す。
// バケット未作成の場合は1回だけ作成してから再実行する。
func (s *S3Store) Upload(ctx context.Context, key, contentType string, r io.ReadSeeker) (string, error) {
	err := s.putObject(ctx, key, contentType, r)
	if err != nil && isBucketNotFound(err) {
		slog.Warn("bucket not found, creating",
			slog.String("bucket", s.cfg.Bucket),
		)
		if err := s.EnsureBucketExists(ctx); err != nil {
			return "", err
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("failed to rewind upload body: %w", err)
		}
		err = s.putObject(ctx, key, contentType, r)
	}
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	return s.ResolveURL(ctx, key, s.cfg.Expiry)
}

// putObject は単発のPutObjectを実行する。
func (s *S3Store) putObject(ctx context.Context, key, contentType string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	return err
}

// ResolveURL は指定キーの取得用URLを返す。
// 公開バケットでは決定的な公開URL、非公開バケットでは署名付きGET URLを返す。
func (s *S3Store) ResolveURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.cfg.PublicRead {
		return s.publicURL(key), nil
	}

	if expiry <= 0 {
		expiry = s.cfg.Expiry
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign get object: %w", err)
	}

	return req.URL, nil
}

// EnsureBucketExists はバケットを冪等に作成する。
func (s *S3Store) EnsureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	}
	// us-east-1以外ではLocationConstraintの指定が必要
	if s.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// publicURL は公開バケットの決定的な取得URLを組み立てる。
func (s *S3Store) publicURL(key string) string {
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// isBucketNotFound はバケット不在を示すエラーかどうかを判定する。
func isBucketNotFound(err error) bool {
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

// compile-time interface check
var _ BlobStore = (*S3Store)(nil)
