// Package cloudsync mirrors an S3 bucket into one local library
// folder so a wall can be fed remotely without touching the devices.
package cloudsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/aouyang1/displaywall/util"
)

const (
	checkInterval = time.Hour
	syncTimeout   = 30 * time.Minute
)

// Syncer performs one-way bucket → folder mirroring: objects missing
// locally are downloaded, local files gone from the bucket are
// removed.
type Syncer struct {
	client *s3.Client

	bucket     string
	outputPath string
}

func New(ctx context.Context, awsProfile, bucket, outputPath string) (*Syncer, error) {
	if awsProfile == "" || bucket == "" {
		return nil, fmt.Errorf("cloud mirror requires both an aws profile and a bucket")
	}

	cfgCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	cfg, err := awsconfig.LoadDefaultConfig(
		cfgCtx,
		awsconfig.WithSharedConfigProfile(awsProfile),
	)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("unable to load aws config, %w", err)
	}

	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create mirror folder, %s, %w", outputPath, err)
	}

	return &Syncer{
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		outputPath: outputPath,
	}, nil
}

func (s *Syncer) remoteFiles(ctx context.Context) (mapset.Set[string], error) {
	output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list bucket %s, %w", s.bucket, err)
	}

	remote := mapset.NewSet[string]()
	for _, object := range output.Contents {
		name := aws.ToString(object.Key)
		if !util.IsImage(name) {
			continue
		}
		remote.Add(name)
	}
	return remote, nil
}

func (s *Syncer) localFiles() (mapset.Set[string], error) {
	entries, err := os.ReadDir(s.outputPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read mirror folder, %s, %w", s.outputPath, err)
	}

	local := mapset.NewSet[string]()
	for _, entry := range entries {
		if entry.IsDir() || !util.IsImage(entry.Name()) {
			continue
		}
		local.Add(entry.Name())
	}
	return local, nil
}

func (s *Syncer) download(ctx context.Context, name string) error {
	downloader := manager.NewDownloader(s.client)

	f, err := os.Create(filepath.Join(s.outputPath, name))
	if err != nil {
		return fmt.Errorf("unable to create file for download, %s, %w", name, err)
	}
	defer f.Close()

	if _, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}); err != nil {
		return fmt.Errorf("unable to download object, %s, %w", name, err)
	}
	return nil
}

// SyncFolder mirrors the bucket once.
func (s *Syncer) SyncFolder(ctx context.Context) error {
	local, err := s.localFiles()
	if err != nil {
		return err
	}
	remote, err := s.remoteFiles(ctx)
	if err != nil {
		return err
	}

	toDelete := local.Difference(remote).ToSlice()
	toDownload := remote.Difference(local).ToSlice()

	if len(toDelete) > 0 {
		slog.Info("removing local files gone from bucket", "count", len(toDelete), "names", toDelete)
		for _, name := range toDelete {
			if err := os.Remove(filepath.Join(s.outputPath, name)); err != nil {
				slog.Warn("unable to remove local file", "name", name, "error", err)
			}
		}
	}
	if len(toDownload) > 0 {
		slog.Info("downloading new bucket objects", "count", len(toDownload), "names", toDownload)
		for _, name := range toDownload {
			if err := s.download(ctx, name); err != nil {
				slog.Warn("error while downloading object", "name", name, "error", err)
			}
		}
	}
	return nil
}

// Run mirrors immediately, then hourly until the context is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	if err := s.SyncFolder(syncCtx); err != nil {
		slog.Warn("error while syncing with bucket", "error", err)
	}
	cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
			if err := s.SyncFolder(syncCtx); err != nil {
				slog.Warn("error while syncing with bucket", "error", err)
			}
			cancel()
		}
	}
}
