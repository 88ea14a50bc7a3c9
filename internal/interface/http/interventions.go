package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/edupredict/risk-monitor/internal/application/command"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// assignRequest is the JSON form of POST /api/v1/interventions.
type assignRequest struct {
	StudentID   string `json:"student_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

func (s *Server) handleListInterventions(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.ListInterventions.All(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, views, &ResponseMeta{TotalCount: len(views)})
}

// handleAssignIntervention handles POST /api/v1/interventions. It accepts
// multipart/form-data with an optional "file" part, or a JSON body.
func (s *Server) handleAssignIntervention(w http.ResponseWriter, r *http.Request) {
	cmd, cleanup, err := s.parseAssign(r)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	iv, err := s.deps.AssignIntervention.Handle(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownStudent) {
			writeErrorCode(w, r, http.StatusUnprocessableEntity, CodeUnknownStudent, domainMessage(err), nil)
			return
		}
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/interventions/"+iv.ID)
	writeJSON(w, r, http.StatusCreated, iv)
}

func (s *Server) parseAssign(r *http.Request) (command.AssignInterventionCommand, func(), error) {
	cmd := command.AssignInterventionCommand{AssignedBy: staffID(r)}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req assignRequest
		if err := decodeJSON(r, &req); err != nil {
			return cmd, nil, err
		}
		cmd.StudentID, cmd.Title, cmd.Description, cmd.DueDate = req.StudentID, req.Title, req.Description, req.DueDate
		return cmd, nil, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return cmd, nil, err
			}
			return cmd, nil, invalidInput("invalid multipart body: " + err.Error())
		}
		cleanup := func() { _ = r.MultipartForm.RemoveAll() }

		cmd.StudentID = r.FormValue("student_id")
		cmd.Title = r.FormValue("title")
		cmd.Description = r.FormValue("description")
		cmd.DueDate = r.FormValue("due_date")

		file, header, err := r.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return cmd, cleanup, invalidInput("invalid file part: " + err.Error())
		default:
			if header.Size > s.config.MaxUploadSize {
				_ = file.Close()
				return cmd, cleanup, &http.MaxBytesError{Limit: s.config.MaxUploadSize}
			}
			cmd.Document = &command.Upload{Filename: header.Filename, Content: file}
			prev := cleanup
			cleanup = func() { _ = file.Close(); prev() }
		}
		return cmd, cleanup, nil

	default:
		return cmd, nil, invalidInput("Content-Type must be multipart/form-data or application/json")
	}
}

// handleUpdateIntervention handles PUT /api/v1/interventions/{id}.
func (s *Server) handleUpdateIntervention(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	iv, err := s.deps.UpdateStatus.Handle(r.Context(), command.UpdateInterventionStatusCommand{
		InterventionID: r.PathValue("id"),
		Status:         req.Status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, iv)
}

// handleDownloadDocument handles GET /api/v1/uploads/interventions/{handle}.
func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Documents == nil {
		writeError(w, r, shared.ErrDocumentNotFound)
		return
	}

	handle := r.PathValue("handle")
	body, doc, err := s.deps.Documents.Open(r.Context(), handle)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	if doc.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	disposition := "inline"
	if !strings.HasPrefix(doc.ContentType, "image/") && !strings.HasPrefix(doc.ContentType, "application/pdf") {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": handle}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
