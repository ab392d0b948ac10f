// Package backup archives the document database to S3-compatible storage,
// optionally sealed with a passphrase, and restores archives to a new file.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/choreweek/internal/proof"
)

const (
	sealedExt = ".db.enc"
	plainExt  = ".db"

	// DefaultPrefix keeps archives apart from proof images in a shared bucket.
	DefaultPrefix = "backups/"
)

// ErrPassphraseRequired is returned when restoring a sealed archive without
// a passphrase.
var ErrPassphraseRequired = errors.New("archive is encrypted and no passphrase is set")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Archive is one stored backup.
type Archive struct {
	Key       string
	Size      int64
	Modified  time.Time
	Encrypted bool
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithPassphrase seals new archives and opens sealed ones on restore.
func WithPassphrase(p string) Option {
	return func(a *Archiver) { a.passphrase = p }
}

// WithRetention removes archives older than d after each run. Zero keeps all.
func WithRetention(d time.Duration) Option {
	return func(a *Archiver) { a.retention = d }
}

// WithPrefix sets the key prefix archives are written under.
func WithPrefix(p string) Option {
	return func(a *Archiver) { a.prefix = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) { a.logger = l }
}

// WithClock overrides the time source used for names and retention.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// Archiver writes, lists, prunes and restores database archives.
type Archiver struct {
	db     *sql.DB
	bucket string
	client s3Client

	prefix     string
	passphrase string
	retention  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewArchiver creates an archiver for db. Callers check cfg.Enabled first.
func NewArchiver(db *sql.DB, cfg proof.S3Config, opts ...Option) *Archiver {
	return newArchiver(db, cfg.Bucket, proof.NewS3Client(cfg), opts...)
}

func newArchiver(db *sql.DB, bucket string, client s3Client, opts ...Option) *Archiver {
	a := &Archiver{
		db:     db,
		bucket: bucket,
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run uploads a consistent copy of the database, then prunes expired
// archives. It returns the new archive's key.
func (a *Archiver) Run(ctx context.Context) (string, error) {
	data, err := Snapshot(ctx, a.db)
	if err != nil {
		return "", err
	}

	ext := plainExt
	if a.passphrase != "" {
		if data, err = Seal(data, a.passphrase); err != nil {
			return "", err
		}
		ext = sealedExt
	}

	key := a.prefix + "choreweek-" + a.now().UTC().Format("2006-01-02T150405Z") + ext
	if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/octet-stream"),
		ContentLength: aws.Int64(int64(len(data))),
	}); err != nil {
		return "", fmt.Errorf("upload backup %s: %w", key, err)
	}
	a.logger.Info("backup uploaded", "key", key, "bytes", len(data), "encrypted", a.passphrase != "")

	if removed, err := a.Prune(ctx); err != nil {
		a.logger.Warn("backup prune failed", "error", err)
	} else if removed > 0 {
		a.logger.Info("expired backups removed", "count", removed)
	}
	return key, nil
}

// List returns the archives under the prefix, oldest first.
func (a *Archiver) List(ctx context.Context) ([]Archive, error) {
	var out []Archive
	p := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, plainExt) && !strings.HasSuffix(key, sealedExt) {
				continue
			}
			out = append(out, Archive{
				Key:       key,
				Size:      aws.ToInt64(obj.Size),
				Modified:  aws.ToTime(obj.LastModified),
				Encrypted: strings.HasSuffix(key, sealedExt),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Prune deletes archives older than the retention window and reports how
// many went.
func (a *Archiver) Prune(ctx context.Context) (int, error) {
	if a.retention <= 0 {
		return 0, nil
	}
	archives, err := a.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := a.now().Add(-a.retention)
	removed := 0
	var errs []error
	for _, arc := range archives {
		if !arc.Modified.Before(cutoff) {
			continue
		}
		if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(arc.Key),
		}); err != nil {
			errs = append(errs, fmt.Errorf("delete backup %s: %w", arc.Key, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Restore downloads key into a new database file at dst. dst must not exist;
// the archive is integrity-checked before it is moved into place.
func (a *Archiver) Restore(ctx context.Context, key, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("restore: %s already exists", dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("restore: %w", err)
	}

	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download backup %s: %w", key, err)
	}
	data, err := io.ReadAll(result.Body)
	result.Body.Close()
	if err != nil {
		return fmt.Errorf("read backup %s: %w", key, err)
	}

	if strings.HasSuffix(key, sealedExt) {
		if a.passphrase == "" {
			return ErrPassphraseRequired
		}
		if data, err = Open(data, a.passphrase); err != nil {
			return err
		}
	}

	tmp := dst + ".restoring"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	defer os.Remove(tmp)

	if err := verify(ctx, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("move restored db: %w", err)
	}
	a.logger.Info("backup restored", "key", key, "path", dst)
	return nil
}

// Snapshot returns a transactionally consistent copy of db's main database.
func Snapshot(ctx context.Context, db *sql.DB) ([]byte, error) {
	dir, err := os.MkdirTemp("", "choreweek-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

func verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return fmt.Errorf("restored db has no documents table: %w", err)
	}
	return nil
}
