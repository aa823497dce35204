package archive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/config"
)

// Uploader stores a file durably and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, itemKey, filePath, fileName string) (string, error)
}

// IAUploader uploads files to archive.org through its S3-compatible
// API. Items are auto-created on first PUT.
type IAUploader struct {
	endpoint     string
	downloadBase string
	accessKey    string
	secretKey    string
	client       *http.Client
	logger       *logrus.Logger
}

// NewIAUploader creates an uploader from config.
func NewIAUploader(cfg config.ArchiveConfig, logger *logrus.Logger) *IAUploader {
	return &IAUploader{
		endpoint:     cfg.Endpoint,
		downloadBase: cfg.DownloadBase,
		accessKey:    cfg.AccessKey,
		secretKey:    cfg.SecretKey,
		client:       &http.Client{Timeout: 5 * time.Minute},
		logger:       logger,
	}
}

// Upload PUTs the file under itemKey/fileName and returns the download
// URL. The local file is left untouched; deleting it after a confirmed
// upload is the caller's job.
func (u *IAUploader) Upload(ctx context.Context, itemKey, filePath, fileName string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", filePath, err)
	}

	target := fmt.Sprintf("%s/%s/%s", u.endpoint, itemKey, fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", fmt.Sprintf("LOW %s:%s", u.accessKey, u.secretKey))
	req.Header.Set("x-archive-auto-make-bucket", "1")
	req.Header.Set("x-archive-meta-mediatype", "texts")
	req.Header.Set("x-archive-meta-collection", "opensource")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload %s: unexpected status %d", fileName, resp.StatusCode)
	}

	publicURL := fmt.Sprintf("%s/%s/%s", u.downloadBase, itemKey, fileName)
	u.logger.WithFields(logrus.Fields{
		"component": "archive",
		"item":      itemKey,
		"file":      fileName,
	}).Info("Attachment archived")
	return publicURL, nil
}

// ItemKey builds the archival item name for a protocol.
func ItemKey(prefix string, protocol int) string {
	return fmt.Sprintf("%s_pedido_%d", prefix, protocol)
}
