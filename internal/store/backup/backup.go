// Package backup uploads compressed, checksummed snapshots of the grid-state
// database to an S3-compatible bucket and enforces a retention policy.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Client wraps the S3 operations the backup service needs.
type Client struct {
	s3     *s3.Client
	bucket string
}

// NewClient builds an S3-compatible client. endpoint may be empty to use
// AWS's default resolver, or a custom URL for R2/MinIO/etc.
func NewClient(ctx context.Context, endpoint, region, accessKey, secretKey, bucket string) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return &Client{s3: client, bucket: bucket}, nil
}

// Upload streams a reader of known size into the bucket under key.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	return err
}

// List returns object summaries with the given key prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(out.Contents))
	for _, obj := range out.Contents {
		o := Object{}
		if obj.Key != nil {
			o.Key = *obj.Key
		}
		if obj.Size != nil {
			o.Size = *obj.Size
		}
		objects = append(objects, o)
	}
	return objects, nil
}

// Delete removes an object by key.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return err
}

// Object is a minimal listing entry.
type Object struct {
	Key  string
	Size int64
}

// Metadata describes one backup archive.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// Info is a parsed listing entry with its derived age.
type Info struct {
	Key       string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

// Service creates, uploads, lists, and rotates backups of a single sqlite
// database file.
type Service struct {
	client   *Client
	dbPath   string
	prefix   string
	log      zerolog.Logger
}

// NewService builds a backup Service for the database file at dbPath.
func NewService(client *Client, dbPath, prefix string, log zerolog.Logger) *Service {
	return &Service{
		client: client,
		dbPath: dbPath,
		prefix: prefix,
		log:    log.With().Str("component", "backup").Logger(),
	}
}

// CreateAndUpload snapshots the database, archives it, and uploads it.
func (s *Service) CreateAndUpload(ctx context.Context) error {
	start := time.Now()
	s.log.Info().Msg("starting backup")

	stagingDir, err := os.MkdirTemp("", "gridbot-backup-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbCopyPath := filepath.Join(stagingDir, "gridstate.db")
	if err := copyFile(s.dbPath, dbCopyPath); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}

	info, err := os.Stat(dbCopyPath)
	if err != nil {
		return fmt.Errorf("stat database copy: %w", err)
	}

	checksum, err := checksumFile(dbCopyPath)
	if err != nil {
		return fmt.Errorf("checksum database: %w", err)
	}

	metadata := Metadata{Timestamp: time.Now().UTC(), SizeBytes: info.Size(), Checksum: checksum}
	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%s-%s.tar.gz", s.prefix, timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)

	if err := createArchive(archivePath, stagingDir, []string{"gridstate.db", "backup-metadata.json"}); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.client.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_kb", archiveInfo.Size()/1024).
		Msg("backup completed")

	return nil
}

// List returns all backups under this service's prefix, newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	objects, err := s.client.List(ctx, s.prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	now := time.Now()
	backups := make([]Info, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}
		timestampStr := strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.prefix+"-"), ".tar.gz")
		ts, err := time.Parse("2006-01-02-150405", timestampStr)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("skipping backup with unparseable timestamp")
			continue
		}
		backups = append(backups, Info{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// minBackupsToKeep is the floor below which rotation never deletes,
// regardless of retentionDays.
const minBackupsToKeep = 3

// Rotate deletes backups older than retentionDays, always keeping at least
// minBackupsToKeep. retentionDays == 0 means keep everything.
func (s *Service) Rotate(ctx context.Context, retentionDays int) error {
	backups, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}

	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || retentionDays == 0 {
			continue
		}
		if b.Timestamp.Before(cutoff) {
			if err := s.client.Delete(ctx, b.Key); err != nil {
				s.log.Error().Err(err).Str("key", b.Key).Msg("failed to delete old backup")
				continue
			}
			deleted++
		}
	}

	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("backup rotation completed")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, metadata Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzw := gzip.NewWriter(archiveFile)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	for _, name := range filenames {
		if err := addFileToArchive(tw, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("add %s to archive: %w", name, err)
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, filePath, nameInArchive string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
