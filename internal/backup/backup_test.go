package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/choreweek/internal/database"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/logging"
)

type object struct {
	data     []byte
	modified time.Time
}

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string]object
	now     func() time.Time
	putErr  error
}

func newMockS3(now func() time.Time) *mockS3Client {
	return &mockS3Client{objects: make(map[string]object), now: now}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, _ := io.ReadAll(input.Body)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*input.Key] = object{data: data, modified: m.now()}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[*input.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, aws.ToString(input.Prefix)) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func (m *mockS3Client) seed(key string, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: []byte("old"), modified: modified}
}

func (m *mockS3Client) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

var fixedNow = time.Date(2025, time.August, 20, 3, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts ...Option) (*Archiver, *mockS3Client, *docstore.SQLite) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := func() time.Time { return fixedNow }
	client := newMockS3(now)
	opts = append([]Option{WithClock(now), WithLogger(logging.Discard())}, opts...)
	return newArchiver(db, "bucket", client, opts...), client, docstore.NewSQLite(db)
}

func TestRunAndRestoreSealed(t *testing.T) {
	a, client, docs := setup(t, WithPassphrase("walnut"))
	ctx := context.Background()
	if err := docs.Set(ctx, "households/demo", docstore.Document{"members": []string{"Abhay", "Bea"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	key, err := a.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := "backups/choreweek-2025-08-20T030000Z.db.enc"; key != want {
		t.Errorf("key = %q, want %q", key, want)
	}
	if bytes.HasPrefix(client.objects[key].data, []byte("SQLite format 3")) {
		t.Error("sealed archive stored in the clear")
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := a.Restore(ctx, key, dst); err != nil {
		t.Fatalf("restore: %v", err)
	}
	db, err := database.Open(dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer db.Close()
	doc, err := docstore.NewSQLite(db).Get(ctx, "households/demo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	members, _ := doc["members"].([]any)
	if len(members) != 2 || members[0] != "Abhay" {
		t.Errorf("restored members = %v", doc["members"])
	}
}

func TestRunPlain(t *testing.T) {
	a, client, _ := setup(t)
	key, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(key, plainExt) || strings.HasSuffix(key, sealedExt) {
		t.Errorf("key = %q, want plain archive", key)
	}
	if !bytes.HasPrefix(client.objects[key].data, []byte("SQLite format 3")) {
		t.Error("plain archive is not a SQLite file")
	}
}

func TestRunUploadError(t *testing.T) {
	a, client, _ := setup(t)
	client.putErr = errors.New("bucket gone")
	if _, err := a.Run(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestPruneRemovesExpiredOnly(t *testing.T) {
	a, client, _ := setup(t, WithRetention(30*24*time.Hour))
	client.seed("backups/choreweek-2025-06-01T030000Z.db", fixedNow.AddDate(0, 0, -80))
	client.seed("backups/choreweek-2025-08-01T030000Z.db", fixedNow.AddDate(0, 0, -19))
	client.seed("proofs/households/demo/p.jpg", fixedNow.AddDate(-1, 0, 0))
	client.seed("backups/notes.txt", fixedNow.AddDate(-1, 0, 0))

	key, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if client.has("backups/choreweek-2025-06-01T030000Z.db") {
		t.Error("expired archive kept")
	}
	for _, k := range []string{key, "backups/choreweek-2025-08-01T030000Z.db", "proofs/households/demo/p.jpg", "backups/notes.txt"} {
		if !client.has(k) {
			t.Errorf("%s removed", k)
		}
	}

	archives, err := a.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(archives) != 2 || archives[0].Key != "backups/choreweek-2025-08-01T030000Z.db" || archives[1].Key != key {
		t.Errorf("archives = %+v", archives)
	}
}

func TestPruneDisabledByDefault(t *testing.T) {
	a, client, _ := setup(t)
	client.seed("backups/choreweek-2020-01-01T000000Z.db", fixedNow.AddDate(-5, 0, 0))
	n, err := a.Prune(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("prune = %d, %v; want 0, nil", n, err)
	}
	if !client.has("backups/choreweek-2020-01-01T000000Z.db") {
		t.Error("archive removed without retention")
	}
}

func TestRestoreErrors(t *testing.T) {
	sealer, client, _ := setup(t, WithPassphrase("right"))
	ctx := context.Background()
	key, err := sealer.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	dir := t.TempDir()

	noPass := newArchiver(nil, "bucket", client, WithLogger(logging.Discard()))
	if err := noPass.Restore(ctx, key, filepath.Join(dir, "a.db")); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("no passphrase err = %v, want ErrPassphraseRequired", err)
	}

	wrong := newArchiver(nil, "bucket", client, WithPassphrase("wrong"), WithLogger(logging.Discard()))
	if err := wrong.Restore(ctx, key, filepath.Join(dir, "b.db")); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("wrong passphrase err = %v, want ErrBadPassphrase", err)
	}

	existing := filepath.Join(dir, "existing.db")
	if err := os.WriteFile(existing, []byte("keep"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := sealer.Restore(ctx, key, existing); err == nil {
		t.Error("restore over an existing file should fail")
	}
	if data, _ := os.ReadFile(existing); string(data) != "keep" {
		t.Errorf("existing file overwritten: %q", data)
	}

	client.seed("backups/junk.db", fixedNow)
	junk := filepath.Join(dir, "junk.db")
	if err := sealer.Restore(ctx, "backups/junk.db", junk); err == nil {
		t.Error("restore of a non-database archive should fail")
	}
	if _, err := os.Stat(junk); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("failed restore left %s behind", junk)
	}

	if err := sealer.Restore(ctx, "backups/missing.db", filepath.Join(dir, "m.db")); err == nil {
		t.Error("restore of a missing key should fail")
	}
}
