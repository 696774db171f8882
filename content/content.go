// Package content turns content files on disk into song details.
package content

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"rocksniff/song"
)

var ErrFileUnavailable = errors.New("file unavailable")

// Parser extracts song details from a content file. A nil map with a nil
// error means the file is not something the parser understands.
type Parser interface {
	Parse(path, hash string) (map[string]*song.Details, error)
}

type Hasher interface {
	Hash(ctx context.Context, path string) (string, error)
}

// WaitPolicy bounds how long a freshly announced file is waited for. A file
// can be reported by the watcher before the writer has created or released
// it.
type WaitPolicy struct {
	ExistTries int
	ExistDelay time.Duration
	OpenTries  int
	OpenDelay  time.Duration
}

func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{ExistTries: 10, ExistDelay: time.Second, OpenTries: 10, OpenDelay: 100 * time.Millisecond}
}

// WaitForFile waits for path to exist and then to open for reading. It
// returns the open file.
func WaitForFile(ctx context.Context, path string, p WaitPolicy) (*os.File, error) {
	exists := func() bool {
		_, err := os.Stat(path)
		return err == nil
	}
	for try := 0; !exists() && try < p.ExistTries; try++ {
		if err := sleep(ctx, p.ExistDelay); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for try := 0; try < max(1, p.OpenTries); try++ {
		f, err := os.Open(path)
		if err == nil {
			return f, nil
		}
		lastErr = err
		if errors.Is(err, fs.ErrNotExist) && try > 0 {
			break
		}
		if err := sleep(ctx, p.OpenDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrFileUnavailable, path, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MD5Hasher hashes file contents as base64 MD5.
type MD5Hasher struct {
	Wait WaitPolicy
}

func NewMD5Hasher() *MD5Hasher {
	return &MD5Hasher{Wait: DefaultWaitPolicy()}
}

func (h *MD5Hasher) Hash(ctx context.Context, path string) (string, error) {
	f, err := WaitForFile(ctx, path, h.Wait)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum := md5.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(sum.Sum(nil)), nil
}
