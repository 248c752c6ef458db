package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	cfg "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/platform"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrUnsupportedMedia = errors.New("unsupported media type")

var allowedMediaTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
}

// MediaStore keeps post attachments in R2. API clients get public URLs;
// browser strategies need the bytes on local disk.
type MediaStore interface {
	Upload(ctx context.Context, userID int64, file []byte) (string, error)
	Resolve(ctx context.Context, keys []string) ([]platform.MediaFile, error)
	Materialize(ctx context.Context, files []platform.MediaFile) ([]string, func(), error)
}

// objectAPI is the subset of *s3.Client the store calls.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type r2Store struct {
	api       objectAPI
	bucket    string
	publicURL string
	tmpDir    string
}

func NewR2Client(ctx context.Context, r2 cfg.R2) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID))
	}), nil
}

func NewMediaStore(api objectAPI, r2 cfg.R2, tmpDir string) MediaStore {
	return &r2Store{
		api:       api,
		bucket:    r2.BucketName,
		publicURL: strings.TrimRight(r2.PublicURL, "/"),
		tmpDir:    tmpDir,
	}
}

// Upload sniffs file, rejects anything but images and videos, and stores it
// under a random key scoped to the owner.
func (r *r2Store) Upload(ctx context.Context, userID int64, file []byte) (string, error) {
	kind, err := filetype.Match(file)
	if err != nil || kind == types.Unknown {
		return "", ErrUnsupportedMedia
	}
	if _, ok := allowedMediaTypes[kind.Extension]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, kind.Extension)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	key := fmt.Sprintf("%d/%s.%s", userID, id, kind.Extension)

	_, err = r.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(kind.MIME.Value),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return key, nil
}

func (r *r2Store) Resolve(ctx context.Context, keys []string) ([]platform.MediaFile, error) {
	files := make([]platform.MediaFile, 0, len(keys))
	for _, key := range keys {
		head, err := r.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("media %s: %w", key, err)
		}
		files = append(files, platform.MediaFile{
			Key:         key,
			URL:         r.publicURL + "/" + key,
			ContentType: aws.ToString(head.ContentType),
		})
	}
	return files, nil
}

// Materialize downloads files into a fresh temp directory. The returned
// cleanup removes it and is safe to call when err is non-nil.
func (r *r2Store) Materialize(ctx context.Context, files []platform.MediaFile) ([]string, func(), error) {
	noop := func() {}
	if len(files) == 0 {
		return nil, noop, nil
	}

	dir, err := os.MkdirTemp(r.tmpDir, "crosspost-media-")
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("remove media dir", "dir", dir, "error", err)
		}
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := r.download(ctx, dir, f.Key)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		paths = append(paths, path)
	}
	return paths, cleanup, nil
}

func (r *r2Store) download(ctx context.Context, dir, key string) (string, error) {
	out, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("media %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("media %s: %w", key, err)
	}

	// Upload inputs filter on extension; use the sniffed one.
	ext := strings.TrimPrefix(filepath.Ext(key), ".")
	if kind, err := filetype.Match(data); err == nil && kind != types.Unknown {
		ext = kind.Extension
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, id+"."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
