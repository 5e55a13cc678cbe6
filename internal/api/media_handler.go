package api

import (
	"errors"
	"net/http"
)

// maxMediaUploadBytes — предел размера загружаемого файла.
const maxMediaUploadBytes = 32 << 20

// UploadMedia принимает файл рассылки (multipart-поле "file") и
// возвращает имя, под которым он сохранён. Кампания ссылается на это
// имя в messages[].file.
// POST /api/v1/media
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMediaUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "uploaded file is too large")
			return
		}
		BadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name, err := h.media.Save(header.Filename, file)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("media uploaded", "file", name, "size", header.Size)
	Created(w, MediaResponse{File: name, Size: header.Size})
}
