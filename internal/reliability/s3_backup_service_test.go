package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blumarkets/strata/internal/database"
)

type fakeStore struct {
	objects map[string][]byte
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]types.Object, error) {
	var objects []types.Object
	for key, data := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(data))),
		})
	}
	return objects, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestBackupService(t *testing.T) (*BackupService, string) {
	t.Helper()

	dataDir := t.TempDir()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE holdings (asset_id TEXT PRIMARY KEY, amount INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO holdings (asset_id, amount) VALUES ('BTC', 21000000)")
	require.NoError(t, err)

	dbs := map[string]*database.DB{"portfolio": db}
	return NewBackupService(dbs, zerolog.Nop()), dataDir
}

func TestBackupDatabaseUnknownName(t *testing.T) {
	backupService, dataDir := newTestBackupService(t)

	err := backupService.BackupDatabase("ledger", filepath.Join(dataDir, "out.db"))
	assert.ErrorContains(t, err, "unknown database")
}

func TestBackupAllWritesTimestampedCopies(t *testing.T) {
	backupService, dataDir := newTestBackupService(t)
	destDir := filepath.Join(dataDir, "backups")

	require.NoError(t, backupService.BackupAll(destDir))

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "portfolio-"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".db"))
}

func TestCreateAndUploadBackup(t *testing.T) {
	backupService, dataDir := newTestBackupService(t)
	store := newFakeStore()
	service := NewS3BackupService(store, backupService, dataDir, zerolog.Nop())

	require.NoError(t, service.CreateAndUploadBackup(context.Background()))

	require.Len(t, store.objects, 1)
	var archiveName string
	var archiveData []byte
	for key, data := range store.objects {
		archiveName, archiveData = key, data
	}
	assert.True(t, strings.HasPrefix(archiveName, backupArchivePrefix))
	assert.True(t, strings.HasSuffix(archiveName, ".tar.gz"))

	// Staging directory is cleaned up after upload.
	_, err := os.Stat(filepath.Join(dataDir, "backup-staging"))
	assert.True(t, os.IsNotExist(err))

	members := readArchive(t, archiveData)
	require.Contains(t, members, "portfolio.db")
	require.Contains(t, members, "backup-metadata.json")

	var metadata BackupMetadata
	require.NoError(t, json.Unmarshal(members["backup-metadata.json"], &metadata))
	require.Len(t, metadata.Databases, 1)
	assert.Equal(t, "portfolio", metadata.Databases[0].Name)
	assert.Equal(t, "portfolio.db", metadata.Databases[0].Filename)
	assert.True(t, strings.HasPrefix(metadata.Databases[0].Checksum, "sha256:"))
	assert.Equal(t, int64(len(members["portfolio.db"])), metadata.Databases[0].SizeBytes)
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()

	gzipReader, err := gzip.NewReader(strings.NewReader(string(data)))
	require.NoError(t, err)
	defer gzipReader.Close()

	members := make(map[string][]byte)
	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		content, err := io.ReadAll(tarReader)
		require.NoError(t, err)
		members[header.Name] = content
	}
	return members
}

func TestListBackupsNewestFirst(t *testing.T) {
	store := newFakeStore()
	store.objects["strata-backup-2026-01-01-000000.tar.gz"] = []byte("a")
	store.objects["strata-backup-2026-03-01-120000.tar.gz"] = []byte("bb")
	store.objects["strata-backup-2026-02-01-060000.tar.gz"] = []byte("ccc")
	store.objects["unrelated-object.txt"] = []byte("junk")
	store.objects["strata-backup-not-a-timestamp.tar.gz"] = []byte("junk")

	service := NewS3BackupService(store, nil, "", zerolog.Nop())

	backups, err := service.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)

	assert.Equal(t, "strata-backup-2026-03-01-120000.tar.gz", backups[0].Filename)
	assert.Equal(t, "strata-backup-2026-02-01-060000.tar.gz", backups[1].Filename)
	assert.Equal(t, "strata-backup-2026-01-01-000000.tar.gz", backups[2].Filename)
	assert.Equal(t, int64(2), backups[0].SizeBytes)
	assert.Greater(t, backups[2].AgeHours, backups[0].AgeHours)
}

func backupKey(ts time.Time) string {
	return backupArchivePrefix + ts.Format("2006-01-02-150405") + ".tar.gz"
}

func TestRotateOldBackupsKeepsMinimum(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	for days := 1; days <= 5; days++ {
		store.objects[backupKey(now.AddDate(0, 0, -days*10))] = []byte("x")
	}

	service := NewS3BackupService(store, nil, "", zerolog.Nop())

	// Everything is older than 7 days, yet the newest 3 survive.
	require.NoError(t, service.RotateOldBackups(context.Background(), 7))
	assert.Len(t, store.objects, 3)
	assert.Len(t, store.deleted, 2)
	assert.NotContains(t, store.objects, backupKey(now.AddDate(0, 0, -40)))
	assert.NotContains(t, store.objects, backupKey(now.AddDate(0, 0, -50)))
}

func TestRotateOldBackupsZeroRetentionKeepsAll(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	for days := 1; days <= 5; days++ {
		store.objects[backupKey(now.AddDate(0, 0, -days*10))] = []byte("x")
	}

	service := NewS3BackupService(store, nil, "", zerolog.Nop())

	require.NoError(t, service.RotateOldBackups(context.Background(), 0))
	assert.Len(t, store.objects, 5)
	assert.Empty(t, store.deleted)
}

func TestCalculateChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	checksum, err := calculateChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", checksum)
}

func TestLocalBackupJobPrunesOldDays(t *testing.T) {
	backupService, dataDir := newTestBackupService(t)
	backupDir := filepath.Join(dataDir, "backups")

	oldDay := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	recentDay := time.Now().AddDate(0, 0, -2).Format("2006-01-02")
	require.NoError(t, os.MkdirAll(filepath.Join(backupDir, "daily", oldDay), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(backupDir, "daily", recentDay), 0755))

	job := NewLocalBackupJob(backupService, backupDir, 7, zerolog.Nop())
	require.NoError(t, job.Run())

	_, err := os.Stat(filepath.Join(backupDir, "daily", oldDay))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(backupDir, "daily", recentDay))
	assert.NoError(t, err)

	today := time.Now().Format("2006-01-02")
	entries, err := os.ReadDir(filepath.Join(backupDir, "daily", today))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
