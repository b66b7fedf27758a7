package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/breaker"
	"github.com/tablecraft/export-worker/internal/obs"
)

// S3Config configures the blob-store's S3/MinIO-compatible backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	// PublicBaseURL rewrites the container-internal endpoint to the
	// externally reachable host/scheme for signed URLs, when set.
	PublicBaseURL string
}

// S3 is the aws-sdk-go backed BlobStore implementation, with a consecutive
// failure circuit breaker on the upload path.
type S3 struct {
	cfg      S3Config
	client   *s3.S3
	uploader *s3manager.Uploader
	logger   *zap.Logger
	cb       *breaker.CircuitBreaker
}

// NewS3 opens an AWS session, probes bucket access via HeadBucket, and
// returns a ready Store guarded by a circuit breaker (cooldown, consecutive
// trip threshold).
func NewS3(cfg S3Config, cooldown time.Duration, consecutiveTrip int, logger *zap.Logger) (*S3, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(cfg.ForcePathStyle)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	client := s3.New(sess)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("access bucket %s: %w", cfg.Bucket, err)
	}

	return &S3{
		cfg:      cfg,
		client:   client,
		uploader: s3manager.NewUploader(sess),
		logger:   logger,
		cb:       breaker.New(cooldown, consecutiveTrip),
	}, nil
}

func (s *S3) Upload(ctx context.Context, path string, body []byte, contentType string) error {
	if !s.cb.Allow() {
		return ErrStorageUnavailable
	}

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})

	prevState := s.cb.State()
	s.cb.Record(err == nil)
	currState := s.cb.State()
	obs.CircuitBreakerState.Set(float64(currState))
	if currState == breaker.Open && prevState != breaker.Open {
		obs.CircuitBreakerTrips.Inc()
		s.logger.Warn("blobstore circuit breaker opened", zap.String("path", path), zap.Error(err))
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (s *S3) SignedURL(ctx context.Context, path string, ttl time.Duration, downloadFilename string) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(path),
		ResponseContentDisposition: aws.String(
			contentDisposition(downloadFilename),
		),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", path, err)
	}
	if s.cfg.PublicBaseURL != "" {
		url = rewriteHost(url, s.cfg.PublicBaseURL)
	}
	return url, nil
}

func (s *S3) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string, limit int) ([]ObjectRef, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []ObjectRef
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.cfg.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(int64(limit)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			ref := ObjectRef{}
			if obj.Key != nil {
				ref.Path = *obj.Key
			}
			if obj.Size != nil {
				ref.Size = *obj.Size
			}
			if obj.LastModified != nil {
				ref.LastModified = *obj.LastModified
			}
			out = append(out, ref)
			if len(out) >= limit {
				return false
			}
		}
		return !lastPage
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return out, nil
}

func (s *S3) DeleteOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	var toDelete []*s3.ObjectIdentifier
	var deleted int

	flush := func() {
		if len(toDelete) == 0 {
			return
		}
		res, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.cfg.Bucket),
			Delete: &s3.Delete{Objects: toDelete, Quiet: aws.Bool(true)},
		})
		if err != nil {
			s.logger.Warn("batch delete failed", zap.Error(err))
		} else {
			deleted += len(res.Deleted)
		}
		toDelete = toDelete[:0]
	}

	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				toDelete = append(toDelete, &s3.ObjectIdentifier{Key: obj.Key})
				if len(toDelete) >= 1000 {
					flush()
				}
			}
		}
		return !lastPage
	})
	flush()
	if err != nil {
		return deleted, fmt.Errorf("list for delete %s: %w", prefix, err)
	}
	return deleted, nil
}

func contentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	return fmt.Sprintf(`attachment; filename="%s"`, filename)
}

// rewriteHost swaps the scheme and host of signedURL for those of
// publicBaseURL, for deployments where the S3 client talks to a
// container-internal endpoint but must hand out externally reachable URLs.
func rewriteHost(signedURL, publicBaseURL string) string {
	pub, err := url.Parse(publicBaseURL)
	if err != nil {
		return signedURL
	}
	u, err := url.Parse(signedURL)
	if err != nil {
		return signedURL
	}
	u.Scheme = pub.Scheme
	u.Host = pub.Host
	return u.String()
}

var _ Store = (*S3)(nil)
