// Package assets stores uploaded battlefield backgrounds on local disk and
// hands out the URL path they are served under.
package assets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const DefaultMaxBytes = 5 << 20

var (
	ErrUnsupportedType = errors.New("only jpg, jpeg, png and gif images are accepted")
	ErrTooLarge        = errors.New("image exceeds the upload size limit")
	ErrEmpty           = errors.New("no image uploaded")
)

var allowed = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

type Disk struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
}

func NewDisk(dir, urlPrefix string, maxBytes int64) (*Disk, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	return &Disk{Dir: dir, URLPrefix: "/" + strings.Trim(urlPrefix, "/"), MaxBytes: maxBytes}, nil
}

// Save writes r under a fresh name keeping filename's extension and returns
// the reference to store on the session. The content must sniff as the image
// type the extension claims.
func (d *Disk) Save(_ context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowed[ext]
	if !ok {
		return "", ErrUnsupportedType
	}

	br := bufio.NewReader(io.LimitReader(r, d.MaxBytes+1))
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("assets: read upload: %w", err)
	}
	if len(head) == 0 {
		return "", ErrEmpty
	}
	if http.DetectContentType(head) != want {
		return "", ErrUnsupportedType
	}

	name := uuid.NewString() + ext
	full := filepath.Join(d.Dir, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("assets: %w", err)
	}
	n, err := io.Copy(f, br)
	err = multierr.Append(err, f.Close())
	if err == nil && n > d.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		return "", multierr.Append(err, os.Remove(full))
	}
	return path.Join(d.URLPrefix, name), nil
}

// Delete removes a stored asset. References that are not ours, or that point
// at files already gone, are ignored.
func (d *Disk) Delete(_ context.Context, ref string) error {
	if ref == "" || !strings.HasPrefix(ref, d.URLPrefix+"/") {
		return nil
	}
	name := path.Base(ref)
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	err := os.Remove(filepath.Join(d.Dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("assets: %w", err)
	}
	return nil
}
