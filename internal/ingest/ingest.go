package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
	"github.com/joseph-ayodele/examlens/internal/extract"
)

// ErrTooLarge means the upload exceeded the configured size limit.
var ErrTooLarge = fmt.Errorf("%w: document too large", common.ErrInvalidInput)

// FromUpload reads one uploaded document. maxBytes <= 0 disables the limit.
// Client mistakes (missing name, unsupported extension, empty body, too
// large) wrap common.ErrInvalidInput.
func FromUpload(filename string, r io.Reader, maxBytes int64) (entity.Document, error) {
	name := filepath.Base(filename)
	if filename == "" || name == "." || name == string(filepath.Separator) {
		return entity.Document{}, common.WrapError(common.ErrInvalidInput, "filename is required")
	}
	ext := constants.NormalizeExt(filepath.Ext(name))
	if !AllowedExt(ext) {
		return entity.Document{}, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("unsupported extension %q", ext))
	}

	var buf bytes.Buffer
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	if _, err := io.Copy(&buf, src); err != nil {
		return entity.Document{}, fmt.Errorf("read upload: %w", err)
	}
	if maxBytes > 0 && int64(buf.Len()) > maxBytes {
		return entity.Document{}, ErrTooLarge
	}
	if buf.Len() == 0 {
		return entity.Document{}, common.WrapError(common.ErrInvalidInput, "document is empty")
	}

	content := buf.Bytes()
	sum := sha256.Sum256(content)
	return entity.Document{
		Filename:    name,
		Content:     content,
		ContentType: extract.Sniff(content),
		Ext:         ext,
		SHA256:      hex.EncodeToString(sum[:]),
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

// FromPath reads a document from the local filesystem.
func FromPath(path string, maxBytes int64) (entity.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entity.Document{}, common.WrapError(common.ErrInvalidInput, err.Error())
		}
		return entity.Document{}, err
	}
	defer f.Close()
	return FromUpload(filepath.Base(path), f, maxBytes)
}
