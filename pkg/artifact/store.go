package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrInvalidName = errors.New("invalid artifact name")

const tmpPrefix = ".tmp-"

type IArtifactStore interface {
	Save(data []byte, name string) (string, error)
	SaveImage(img image.Image, name string) (string, error)
	Copy(srcName, dstName string) (string, error)
	Load(name string) ([]byte, error)
	Remove(name string) error
	Publish(name string) error
	Path(name string) string
	URL(name string) string
}

// Mirror receives a copy of every artifact written by the store and drops it
// again when the local file is removed.
type Mirror interface {
	UploadObject(key string, body io.Reader, contentType string) (string, error)
	DeleteFile(fileName string) error
}

type store struct {
	root      string
	urlPrefix string
	mirror    Mirror
	log       *logrus.Logger
}

type Option func(*store)

func WithMirror(m Mirror) Option {
	return func(s *store) {
		s.mirror = m
	}
}

// New returns a filesystem store rooted at root whose artifacts are served
// publicly under urlPrefix.
func New(log *logrus.Logger, root, urlPrefix string, opts ...Option) IArtifactStore {
	s := &store{
		root:      root,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) Path(name string) string {
	return filepath.Join(s.root, name)
}

func (s *store) URL(name string) string {
	return path.Join(s.urlPrefix, name)
}

func (s *store) Save(data []byte, name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	dst := s.Path(name)
	if err := writeFile(dst, data); err != nil {
		return "", err
	}

	s.mirrorObject(name, data)
	return dst, nil
}

func (s *store) SaveImage(img image.Image, name string) (string, error) {
	var buf bytes.Buffer
	if err := EncodeImage(&buf, img, filepath.Ext(name)); err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	return s.Save(buf.Bytes(), name)
}

func (s *store) Copy(srcName, dstName string) (string, error) {
	if !validName(srcName) || !validName(dstName) {
		return "", fmt.Errorf("%w: %q -> %q", ErrInvalidName, srcName, dstName)
	}

	data, err := os.ReadFile(s.Path(srcName))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", srcName, err)
	}
	return s.Save(data, dstName)
}

func (s *store) Load(name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return os.ReadFile(s.Path(name))
}

func (s *store) Remove(name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	err := os.Remove(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	if err == nil {
		unmirror(s.log, s.mirror, name)
	}
	return err
}

// Publish mirrors an artifact that was written directly to Path(name)
// instead of through Save.
func (s *store) Publish(name string) error {
	if s.mirror == nil {
		return nil
	}
	data, err := s.Load(name)
	if err != nil {
		return err
	}
	s.mirrorObject(name, data)
	return nil
}

func (s *store) mirrorObject(name string, data []byte) {
	if s.mirror == nil {
		return
	}

	location, err := s.mirror.UploadObject(name, bytes.NewReader(data), ContentType(filepath.Ext(name)))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"artifact": name,
			"error":    err.Error(),
		}).Warn("Failed to mirror artifact")
		return
	}

	s.log.WithFields(logrus.Fields{
		"artifact": name,
		"location": location,
	}).Debug("Artifact mirrored")
}

// unmirror is best effort; a stale remote copy never fails a local removal.
func unmirror(log *logrus.Logger, m Mirror, name string) {
	if m == nil || strings.HasPrefix(name, tmpPrefix) {
		return
	}
	if err := m.DeleteFile(name); err != nil {
		log.WithFields(logrus.Fields{
			"artifact": name,
			"error":    err.Error(),
		}).Warn("Failed to delete mirrored artifact")
	}
}

// writeFile replaces dst atomically so the static handler never serves a
// half written artifact.
func writeFile(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
