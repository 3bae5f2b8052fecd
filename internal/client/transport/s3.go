package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/formsync/internal/client/codec"
	"github.com/dmitrijs2005/formsync/internal/netx"
)

const presignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// S3Config describes an S3-compatible drop box.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	Timeout      time.Duration
}

// S3Transport uploads each submission as one object through a presigned PUT.
// The object key is derived from the submission, so a redelivery overwrites
// the same object.
type S3Transport struct {
	cfg     S3Config
	presign *s3.PresignClient
	client  *http.Client
}

func NewS3Transport(ctx context.Context, cfg S3Config) (*S3Transport, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Transport{
		cfg:     cfg,
		presign: s3.NewPresignClient(client),
		client:  &http.Client{},
	}, nil
}

// ObjectKey is submissions/<yyyy>/<mm>/<dd>/<submission id>.json.
func ObjectKey(p *codec.TransportPayload) string {
	d := p.SubmittedAt.UTC()
	return fmt.Sprintf("submissions/%04d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), p.SubmissionID)
}

func (t *S3Transport) Send(ctx context.Context, p *codec.TransportPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	bucket := t.cfg.Bucket
	key := ObjectKey(p)
	contentType := "application/json"

	req, err := presignPutObject(t.presign, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return &NetworkError{Err: fmt.Errorf("presign %s: %w", key, err)}
	}

	err = netx.PutPresigned(ctx, t.client, req.URL, body, contentType)
	if err == nil {
		return nil
	}

	var se *netx.StatusError
	if errors.As(err, &se) {
		return &ServerError{StatusCode: se.Code, Body: se.Body}
	}
	return &NetworkError{Err: err}
}
