package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

const (
	// multipartOverhead leaves room for boundaries and text fields on top of the file budget.
	multipartOverhead  = 1 << 20
	maxMultipartMemory = 8 << 20
)

// uploadForm is a parsed multipart request with every file already buffered and checked.
type uploadForm struct {
	form    *multipart.Form
	uploads map[string][]domain.Upload
}

func (f *uploadForm) value(name string) string {
	if f == nil || f.form == nil {
		return ""
	}
	if values := f.form.Value[name]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func (f *uploadForm) files(field string) []domain.Upload {
	return f.uploads[field]
}

// decodeJSONField unpacks a text field that carries serialized JSON.
// An absent or empty field leaves dst untouched.
func (f *uploadForm) decodeJSONField(name string, dst any) error {
	raw := f.value(name)
	if raw == "" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode form field", fmt.Errorf("%s: %w", name, err))
	}
	return nil
}

func (f *uploadForm) close() {
	if f != nil && f.form != nil {
		_ = f.form.RemoveAll()
	}
}

// parseUploadForm enforces the request-wide size cap, then reads the named file
// fields into memory. Each file is rejected on its declared header before its
// body is read and again if the sniffed content does not match the extension.
func parseUploadForm(w http.ResponseWriter, r *http.Request, fields ...string) (*uploadForm, error) {
	const op = "parse upload"

	limit := int64(domain.MaxUploadFilesPerCall)*domain.MaxUploadFileSize + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.Errorf(domain.ErrInvalidInput, op, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, op, err)
	}

	out := &uploadForm{form: r.MultipartForm, uploads: make(map[string][]domain.Upload, len(fields))}
	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		if len(headers) > domain.MaxUploadFilesPerCall {
			out.close()
			return nil, domain.Errorf(domain.ErrInvalidInput, op, "at most %d files per request", domain.MaxUploadFilesPerCall)
		}
		for _, fh := range headers {
			upload, err := readUpload(fh)
			if err != nil {
				out.close()
				return nil, err
			}
			out.uploads[field] = append(out.uploads[field], upload)
		}
	}
	return out, nil
}

func readUpload(fh *multipart.FileHeader) (domain.Upload, error) {
	declared := fh.Header.Get("Content-Type")
	if err := domain.ValidateUploadHeader(fh.Filename, declared, fh.Size); err != nil {
		return domain.Upload{}, err
	}

	f, err := fh.Open()
	if err != nil {
		return domain.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, domain.MaxUploadFileSize+1))
	if err != nil {
		return domain.Upload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	upload := domain.Upload{Filename: fh.Filename, ContentType: declared, Data: data}
	if err := domain.ValidateUploadContent(upload, http.DetectContentType(data)); err != nil {
		return domain.Upload{}, err
	}
	return upload, nil
}
