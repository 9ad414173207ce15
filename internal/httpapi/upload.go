package httpapi

import (
	"errors"
	"net/http"

	"taskflow.dev/internal/importer"
)

const uploadField = "file"

// readUpload reads the multipart "file" field and extracts its rows.
func readUpload(w http.ResponseWriter, r *http.Request) ([][]string, error) {
	// Room for the multipart envelope around a maximum-size file.
	r.Body = http.MaxBytesReader(w, r.Body, importer.MaxUploadBytes+maxJSONBytes)
	if err := r.ParseMultipartForm(importer.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, importer.ErrTooLarge
		}
		return nil, importer.ErrNoFile
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return nil, importer.ErrNoFile
	}
	defer file.Close()

	format, err := importer.ValidateUpload(header.Filename, header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		return nil, err
	}
	return importer.ReadRows(format, file)
}
