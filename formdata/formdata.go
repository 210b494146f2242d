// Package formdata builds multipart/form-data request bodies.
package formdata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
)

type partKind int

const (
	fieldPart partKind = iota
	filePart
	pathPart
)

type part struct {
	kind        partKind
	name        string
	value       string
	fileName    string
	contentType string
	content     []byte
	path        string
}

// Form is a multipart form. Parts are encoded in the order they were added. Files added with
// AddFileFromPath are not read until Buffer is called.
//
// The boundary is fixed when the Form is created, so Headers can be called before or after Buffer.
type Form struct {
	boundary string
	parts    []part
	lock     sync.Mutex
}

// New creates an empty Form with a random boundary.
func New() *Form {
	return &Form{boundary: multipart.NewWriter(io.Discard).Boundary()}
}

// AddField adds a plain form field.
func (f *Form) AddField(name, value string) *Form {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.parts = append(f.parts, part{kind: fieldPart, name: name, value: value})
	return f
}

// AddFile adds a file part with the given content. If contentType is empty,
// "application/octet-stream" is used.
func (f *Form) AddFile(name, fileName, contentType string, content []byte) *Form {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.parts = append(f.parts, part{kind: filePart, name: name, fileName: fileName,
		contentType: contentType, content: append([]byte(nil), content...)})
	return f
}

// AddFileFromPath adds a file part whose content is read from path when the form is buffered. The
// part's file name is the base name of path.
func (f *Form) AddFileFromPath(name, path, contentType string) *Form {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.parts = append(f.parts, part{kind: pathPart, name: name, fileName: filepath.Base(path),
		contentType: contentType, path: path})
	return f
}

// Boundary returns the multipart boundary.
func (f *Form) Boundary() string {
	return f.boundary
}

// ContentType returns the value of the Content-Type header for this form.
func (f *Form) ContentType() string {
	return "multipart/form-data; boundary=" + f.boundary
}

// Headers returns the headers that must accompany the encoded form. If includeChunked is true,
// a "Transfer-Encoding: chunked" header is included as well.
func (f *Form) Headers(includeChunked bool) map[string]string {
	ret := map[string]string{"Content-Type": f.ContentType()}
	if includeChunked {
		ret["Transfer-Encoding"] = "chunked"
	}
	return ret
}

// Buffer encodes the whole form.
func (f *Form) Buffer(ctx context.Context) ([]byte, error) {
	f.lock.Lock()
	parts := append([]part(nil), f.parts...)
	f.lock.Unlock()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.SetBoundary(f.boundary); err != nil {
		return nil, err
	}
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := writePart(writer, p); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return body.Bytes(), nil
}

func writePart(writer *multipart.Writer, p part) error {
	if p.kind == fieldPart {
		return writer.WriteField(p.name, p.value)
	}
	content := p.content
	if p.kind == pathPart {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return fmt.Errorf("failed to read form file %q: %w", p.path, err)
		}
		content = data
	}
	contentType := p.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.name, p.fileName))
	header.Set("Content-Type", contentType)
	w, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}
