package artifact

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestName(t *testing.T) {
	require.Equal(t, "input_abc.png", Name("abc", RoleInput, 0, ".png"))
	require.Equal(t, "crop_abc_3.png", Name("abc", RoleCrop, 3, ".png"))
	require.Equal(t, "annotated_abc.jpg", Name("abc", RoleAnnotated, 7, ".jpg"))
	require.NotEqual(t, Name("a", RoleCrop, 1, ".jpg"), Name("b", RoleCrop, 1, ".jpg"))
}

func TestExtensionOf(t *testing.T) {
	cases := map[string]string{
		"cat.png":          ".png",
		"photo.JPEG":       ".JPEG",
		"noext":            DefaultExtension,
		"trailing.":        DefaultExtension,
		"":                 DefaultExtension,
		"dir.d/file":       DefaultExtension,
		"weird.j p":        DefaultExtension,
		"archive.tar.gz":   ".gz",
		"../../etc/passwd": DefaultExtension,
	}
	for in, want := range cases {
		require.Equal(t, want, ExtensionOf(in), in)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "images")
	s := New(newTestLogger(), root, "static/images")

	data := []byte{0xff, 0xd8, 0x00, 0x01, 0x02}
	p, err := s.Save(data, "input_r1.jpg")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "input_r1.jpg"), p)

	loaded, err := s.Load("input_r1.jpg")
	require.NoError(t, err)
	require.Equal(t, data, loaded)

	_, err = s.Save([]byte("second"), "input_r1.jpg")
	require.NoError(t, err)
	loaded, err = s.Load("input_r1.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), loaded)

	require.Equal(t, "/static/images/input_r1.jpg", s.URL("input_r1.jpg"))
}

func TestStore_CopyAndRemove(t *testing.T) {
	s := New(newTestLogger(), t.TempDir(), "/static/images")

	_, err := s.Save([]byte("payload"), "input_r2.png")
	require.NoError(t, err)

	_, err = s.Copy("input_r2.png", "annotated_r2.png")
	require.NoError(t, err)

	copied, err := s.Load("annotated_r2.png")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), copied)

	require.NoError(t, s.Remove("annotated_r2.png"))
	require.NoError(t, s.Remove("annotated_r2.png"))
	_, err = s.Load("annotated_r2.png")
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStore_RejectsPathNames(t *testing.T) {
	s := New(newTestLogger(), t.TempDir(), "/static/images")

	_, err := s.Save([]byte("x"), "../escape.jpg")
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Copy("input.jpg", "a/b.jpg")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestStore_SaveImageDecodes(t *testing.T) {
	s := New(newTestLogger(), t.TempDir(), "/static/images")

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	p, err := s.SaveImage(img, "crop_r3_0.png")
	require.NoError(t, err)

	decoded, err := DecodeFile(p)
	require.NoError(t, err)
	require.Equal(t, 8, decoded.Bounds().Dx())
	require.Equal(t, 6, decoded.Bounds().Dy())
}

type recordingMirror struct {
	keys    []string
	deleted []string
	fail    bool
}

func (m *recordingMirror) DeleteFile(fileName string) error {
	if m.fail {
		return errors.New("bucket unavailable")
	}
	m.deleted = append(m.deleted, fileName)
	return nil
}

func (m *recordingMirror) UploadObject(key string, body io.Reader, contentType string) (string, error) {
	if m.fail {
		return "", errors.New("bucket unavailable")
	}
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, body)
	m.keys = append(m.keys, key+"|"+contentType)
	return "s3://bucket/" + key, nil
}

func TestStore_MirrorIsBestEffort(t *testing.T) {
	m := &recordingMirror{}
	s := New(newTestLogger(), t.TempDir(), "/static/images", WithMirror(m))

	_, err := s.Save([]byte("a"), "input_r4.png")
	require.NoError(t, err)
	require.Equal(t, []string{"input_r4.png|image/png"}, m.keys)

	m.fail = true
	_, err = s.Save([]byte("b"), "annotated_r4.png")
	require.NoError(t, err)
}

func TestStore_PublishMirrorsDirectWrites(t *testing.T) {
	m := &recordingMirror{}
	root := t.TempDir()
	s := New(newTestLogger(), root, "/static/images", WithMirror(m))

	require.NoError(t, os.WriteFile(s.Path("annotated_r5.jpg"), []byte("x"), 0o644))
	require.NoError(t, s.Publish("annotated_r5.jpg"))
	require.Equal(t, []string{"annotated_r5.jpg|image/jpeg"}, m.keys)

	require.Error(t, s.Publish("annotated_missing.jpg"))
	require.NoError(t, New(newTestLogger(), root, "/static/images").Publish("annotated_missing.jpg"))
}

func TestJanitor_Sweep(t *testing.T) {
	root := t.TempDir()
	s := New(newTestLogger(), root, "/static/images")

	_, err := s.Save([]byte("old"), "input_old.jpg")
	require.NoError(t, err)
	_, err = s.Save([]byte("new"), "input_new.jpg")
	require.NoError(t, err)

	now := time.Now()
	past := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "input_old.jpg"), past, past))

	j := NewJanitor(newTestLogger(), root, time.Hour, time.Minute, nil)
	removed, err := j.Sweep(now)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = s.Load("input_old.jpg")
	require.Error(t, err)
	_, err = s.Load("input_new.jpg")
	require.NoError(t, err)
}

func TestJanitor_MissingRoot(t *testing.T) {
	j := NewJanitor(newTestLogger(), filepath.Join(t.TempDir(), "absent"), time.Hour, time.Minute, nil)
	removed, err := j.Sweep(time.Now())
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestStore_RemoveDropsMirroredCopy(t *testing.T) {
	m := &recordingMirror{}
	s := New(newTestLogger(), t.TempDir(), "/static/images", WithMirror(m))

	_, err := s.Save([]byte("a"), "input_r6.png")
	require.NoError(t, err)
	require.NoError(t, s.Remove("input_r6.png"))
	require.Equal(t, []string{"input_r6.png"}, m.deleted)

	m.fail = true
	_, err = s.Save([]byte("b"), "input_r7.png")
	require.NoError(t, err)
	require.NoError(t, s.Remove("input_r7.png"))
}

func TestJanitor_SweepDropsMirroredCopies(t *testing.T) {
	root := t.TempDir()
	m := &recordingMirror{}

	past := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{"crop_old_0.jpg", ".tmp-annotated_old.jpg-123"} {
		p := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, past, past))
	}

	removed, err := NewJanitor(newTestLogger(), root, time.Hour, time.Minute, m).Sweep(time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Equal(t, []string{"crop_old_0.jpg"}, m.deleted)
}
