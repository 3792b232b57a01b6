package proc

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/go-pkgz/lgr"
	"github.com/schollz/progressbar/v3"
)

// Videos streams episode videos to disk and archives them per episode
type Videos struct {
	Client *http.Client
}

// NewVideos with the given request timeout in seconds. The timeout covers the
// whole transfer, so it is scaled up from the API timeout.
func NewVideos(timeout int) *Videos {
	return &Videos{Client: &http.Client{Timeout: time.Duration(timeout) * time.Minute}}
}

// Download streams the video at url to filePath with a byte progress bar.
// A partial file is removed on failure.
func (v *Videos) Download(ctx context.Context, url, filePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("can't build video request: %w", err)
	}

	resp, err := v.Client.Do(req)
	if err != nil {
		return fmt.Errorf("video request failed: %w", err)
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("video request returned status %d", resp.StatusCode)
	}

	f, err := os.Create(filePath) // nolint
	if err != nil {
		return fmt.Errorf("can't create %s: %w", filePath, err)
	}

	bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(filePath))
	written, err := io.Copy(io.MultiWriter(f, bar), resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			log.Printf("[WARN] can't remove partial file %s, %v", filePath, rerr)
		}
		return fmt.Errorf("can't download %s: %w", url, err)
	}

	log.Printf("[DEBUG] downloaded %s (%s)", filePath, humanize.Bytes(uint64(written)))
	return nil
}

// Archive compresses the downloaded video into a zip next to it and removes
// the original file. Returns the archive path.
func (v *Videos) Archive(filePath string) (string, error) {
	zipPath := filePath[:len(filePath)-len(filepath.Ext(filePath))] + ".zip"

	zf, err := os.Create(zipPath) // nolint
	if err != nil {
		return "", fmt.Errorf("can't create %s: %w", zipPath, err)
	}

	zw := zip.NewWriter(zf)
	err = v.addToArchive(zw, filePath)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := zf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("can't archive %s: %w", filePath, err)
	}

	if err := os.Remove(filePath); err != nil {
		return "", fmt.Errorf("can't remove archived video %s: %w", filePath, err)
	}

	return zipPath, nil
}

func (v *Videos) addToArchive(zw *zip.Writer, filePath string) error {
	f, err := os.Open(filePath) // nolint
	if err != nil {
		return err
	}
	defer f.Close() // nolint

	w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.Base(filePath), Method: zip.Deflate})
	if err != nil {
		return err
	}

	_, err = io.Copy(w, f)
	return err
}
