package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"story-stage/pkg/logging"
)

// S3Config describes where show assets live in S3.
type S3Config struct {
	Region      string
	AccessKey   string
	SecretKey   string
	Bucket      string
	Prefix      string
	Concurrency int
}

// SyncResult summarises one sync run.
type SyncResult struct {
	Downloaded []string
	Skipped    []string
	Failed     map[string]error
}

// Syncer mirrors an S3 prefix into the local asset directory.
type Syncer struct {
	client      s3iface.S3API
	bucket      string
	prefix      string
	dir         string
	concurrency int
	log         zerolog.Logger
}

// NewS3Client builds a client. Static credentials are used when both keys
// are set, otherwise the SDK default chain applies.
func NewS3Client(cfg S3Config) (s3iface.S3API, error) {
	if cfg.Region == "" {
		return nil, errors.New("missing AWS region (AWS_DEFAULT_REGION)")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return s3.New(sess), nil
}

// NewSyncer creates a syncer writing into dir.
func NewSyncer(client s3iface.S3API, cfg S3Config, dir string) (*Syncer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("missing S3 bucket (STAGE_S3_BUCKET)")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Syncer{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		dir:         dir,
		concurrency: cfg.Concurrency,
		log:         logging.WithComponent("assets"),
	}, nil
}

type remoteObject struct {
	key      string
	size     int64
	modified time.Time
}

// Sync downloads new and changed objects. Individual download failures are
// collected in the result; only listing errors abort the run.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	res := SyncResult{Failed: make(map[string]error)}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return res, err
	}

	objects, err := s.list(ctx)
	if err != nil {
		return res, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
	}
	s.log.Info().Str("bucket", s.bucket).Str("prefix", s.prefix).Int("objects", len(objects)).Msg("sync started")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, obj := range objects {
		local, err := s.localPath(obj.key)
		if err != nil {
			res.Failed[obj.key] = err
			continue
		}
		if upToDate(local, obj) {
			res.Skipped = append(res.Skipped, local)
			continue
		}

		g.Go(func() error {
			err := s.download(gctx, obj.key, local)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn().Err(err).Str("key", obj.key).Msg("download failed")
				res.Failed[obj.key] = err
				return nil
			}
			res.Downloaded = append(res.Downloaded, local)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	s.log.Info().
		Int("downloaded", len(res.Downloaded)).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failed)).
		Msg("sync completed")
	return res, nil
}

func (s *Syncer) list(ctx context.Context) ([]remoteObject, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}
	var objects []remoteObject
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			// Keys ending in "/" are folder placeholders.
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			objects = append(objects, remoteObject{
				key:      *obj.Key,
				size:     aws.Int64Value(obj.Size),
				modified: aws.TimeValue(obj.LastModified),
			})
		}
		return !lastPage
	})
	return objects, err
}

// localPath maps a key to a path under the asset dir, keeping any
// sub-folders below the prefix.
func (s *Syncer) localPath(key string) (string, error) {
	rel := strings.TrimPrefix(key, s.prefix)
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" || rel == "." {
		return "", fmt.Errorf("key %q has no file name below prefix", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(rel)), nil
}

func upToDate(local string, obj remoteObject) bool {
	info, err := os.Stat(local)
	if err != nil {
		return false
	}
	return info.Size() == obj.size && !info.ModTime().Before(obj.modified)
}

func (s *Syncer) download(ctx context.Context, key, local string) error {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	s.log.Debug().Str("key", key).Str("path", local).Msg("downloaded")
	return nil
}
