package s3

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	require.Equal(t, "input_x.png", (&s3Client{}).objectKey("input_x.png"))
	require.Equal(t, "vision/input_x.png", (&s3Client{prefix: "vision"}).objectKey("input_x.png"))
}

func TestNew_RequiresBucket(t *testing.T) {
	t.Setenv("AWS_BUCKET_NAME", "")
	_, err := New()
	require.Error(t, err)
}
