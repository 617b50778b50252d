// Package media mirrors ad creatives into S3. Platform CDN URLs expire
// (fbcdn signatures in particular), so thumbnails are re-hosted at save time
// and the stored ad points at the mirror instead.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxDownloadBytes caps a single creative download.
const maxDownloadBytes = 25 << 20

// extByContentType maps the content types the platforms actually serve.
var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
}

// S3Mirror uploads creatives to one bucket under a key prefix.
type S3Mirror struct {
	client    *s3.Client
	http      *http.Client
	bucket    string
	keyPrefix string
	region    string
}

// NewS3Mirror builds a mirror with static credentials.
func NewS3Mirror(ctx context.Context, accessKeyID, secretAccessKey, region, bucket, keyPrefix string) (*S3Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Mirror{
		client:    s3.NewFromConfig(awsCfg),
		http:      &http.Client{Timeout: 60 * time.Second},
		bucket:    bucket,
		keyPrefix: keyPrefix,
		region:    region,
	}, nil
}

// MirrorURL downloads src and re-uploads it under a fresh key, returning the
// public mirror URL. Any failure returns src unchanged: a short-lived CDN URL
// beats losing the ad.
func (m *S3Mirror) MirrorURL(ctx context.Context, src string) string {
	if src == "" || strings.Contains(src, m.bucket+".s3.") {
		return src
	}

	body, contentType, err := m.download(ctx, src)
	if err != nil {
		zap.L().Warn("media download failed", zap.String("url", src), zap.Error(err))
		return src
	}

	key := path.Join(m.keyPrefix, uuid.NewString()+m.extFor(contentType, src))
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		zap.L().Warn("media upload failed", zap.String("url", src), zap.Error(err))
		return src
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", m.bucket, m.region, key)
}

func (m *S3Mirror) download(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch creative: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch creative: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read creative: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return body, strings.TrimSpace(contentType), nil
}

// extFor picks a key extension: the content type when recognized, the URL
// path extension otherwise. The .jpe variant some CDNs serve maps to .jpg.
func (m *S3Mirror) extFor(contentType, src string) string {
	if ext, ok := extByContentType[contentType]; ok {
		return ext
	}
	if u, err := url.Parse(src); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if ext == ".jpe" {
			return ".jpg"
		}
		if ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ".jpg"
}
