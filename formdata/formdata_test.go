package formdata

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodedPart struct {
	name, fileName, contentType, content string
}

func decode(t *testing.T, form *Form, data []byte) []decodedPart {
	mediaType, params, err := mime.ParseMediaType(form.Headers(false)["Content-Type"])
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)
	reader := multipart.NewReader(bytes.NewReader(data), params["boundary"])
	var ret []decodedPart
	for {
		p, err := reader.NextPart()
		if err == io.EOF {
			return ret
		}
		require.NoError(t, err)
		content, err := io.ReadAll(p)
		require.NoError(t, err)
		ret = append(ret, decodedPart{p.FormName(), p.FileName(), p.Header.Get("Content-Type"), string(content)})
	}
}

func TestFormEncodesFieldsAndFiles(t *testing.T) {
	form := New().
		AddField("title", "spec sheet").
		AddFile("attachment", "bolt.txt", "text/plain", []byte("hex head"))

	data, err := form.Buffer(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []decodedPart{
		{"title", "", "", "spec sheet"},
		{"attachment", "bolt.txt", "text/plain", "hex head"},
	}, decode(t, form, data))
}

func TestFormReadsPathOnlyWhenBuffered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "later.bin")
	form := New().AddFileFromPath("upload", path, "")

	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0600))
	data, err := form.Buffer(context.Background())
	require.NoError(t, err)

	parts := decode(t, form, data)
	require.Len(t, parts, 1)
	assert.Equal(t, "later.bin", parts[0].fileName)
	assert.Equal(t, "application/octet-stream", parts[0].contentType)
	assert.Equal(t, string([]byte{1, 2, 3}), parts[0].content)
}

func TestFormMissingFileIsError(t *testing.T) {
	form := New().AddFileFromPath("upload", filepath.Join(t.TempDir(), "nope"), "")
	_, err := form.Buffer(context.Background())
	assert.Error(t, err)
}

func TestFormHeaders(t *testing.T) {
	form := New()
	assert.Equal(t, map[string]string{"Content-Type": "multipart/form-data; boundary=" + form.Boundary()},
		form.Headers(false))
	assert.Equal(t, "chunked", form.Headers(true)["Transfer-Encoding"])
	assert.NotEqual(t, form.Boundary(), New().Boundary())
}

func TestFormBufferHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().AddField("a", "b").Buffer(ctx)
	assert.Equal(t, context.Canceled, err)
}
