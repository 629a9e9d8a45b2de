package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/iancossa/attendance-fullstack/internal/attendance"
	"github.com/iancossa/attendance-fullstack/internal/auth"
	"github.com/iancossa/attendance-fullstack/internal/justification"
	"github.com/iancossa/attendance-fullstack/internal/logging"
)

type justificationHandler struct {
	svc      Attendance
	forms    *justification.Registry
	logger   logging.Logger
	maxBytes int64
}

func registerJustificationRoutes(r *gin.RouterGroup, d Deps) {
	h := &justificationHandler{svc: d.Attendance, forms: d.Forms, logger: d.Logger, maxBytes: d.MaxUploadBytes}
	g := r.Group("/justifications")
	g.POST("", h.submitOnce)
	g.GET("", h.list)
	g.POST("/:id/review", auth.RequireRole(auth.RoleFaculty, auth.RoleAdmin), h.review)

	f := g.Group("/forms")
	f.POST("", h.open)
	f.GET("/:id", h.withForm(h.show))
	f.PATCH("/:id", h.withForm(h.edit))
	f.POST("/:id/documents", h.withForm(h.attach))
	f.DELETE("/:id/documents/:index", h.withForm(h.detach))
	f.POST("/:id/submit", h.withForm(h.submit))
	f.DELETE("/:id", h.withForm(h.close))
}

// actingStudent resolves whose justification this is. Students act for themselves;
// staff name the student explicitly.
func actingStudent(c *gin.Context, explicit string) (string, error) {
	claims, _ := auth.ClaimsFrom(c)
	explicit = strings.TrimSpace(explicit)
	if claims.Role == auth.RoleStudent {
		if explicit != "" && explicit != claims.StudentID {
			return "", errForbidden
		}
		return claims.StudentID, nil
	}
	return explicit, nil
}

func (h *justificationHandler) submitCtx(c *gin.Context, student string) context.Context {
	return attendance.WithStudent(c.Request.Context(), student)
}

// submitOnce accepts the whole request as one multipart body and runs it through a form.
func (h *justificationHandler) submitOnce(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	if err := c.Request.ParseMultipartForm(h.maxBytes); err != nil && err != http.ErrNotMultipart {
		badRequest(c, "invalid multipart body: "+err.Error())
		return
	}
	student, err := actingStudent(c, c.PostForm("student_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	docs, err := readDocuments(c.Request.MultipartForm)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	f := h.forms.Open(claims.Subject)
	defer f.Close()
	_ = f.SetTarget(c.PostForm("target_id"))
	_ = f.SetReason(parseReason(c.PostForm("reason")))
	_ = f.SetDescription(c.PostForm("description"))
	for _, d := range docs {
		if err := f.Attach(d); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	if err := f.Submit(h.submitCtx(c, student)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": justification.SuccessMessage})
}

func (h *justificationHandler) open(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	f := h.forms.Open(claims.Subject)
	c.JSON(http.StatusCreated, f.Snapshot())
}

// withForm loads the form named in the path and checks the caller owns it.
func (h *justificationHandler) withForm(next func(*gin.Context, *justification.Form)) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := h.forms.Get(c.Param("id"))
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		claims, _ := auth.ClaimsFrom(c)
		if !f.OwnedBy(claims.Subject) {
			respondError(c, h.logger, justification.ErrFormNotFound)
			return
		}
		next(c, f)
	}
}

func (h *justificationHandler) show(c *gin.Context, f *justification.Form) {
	c.JSON(http.StatusOK, f.Snapshot())
}

type formEdit struct {
	TargetID    *string `json:"target_id"`
	Reason      *string `json:"reason"`
	Description *string `json:"description"`
}

func (h *justificationHandler) edit(c *gin.Context, f *justification.Form) {
	var req formEdit
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var err error
	if req.TargetID != nil {
		err = f.SetTarget(*req.TargetID)
	}
	if err == nil && req.Reason != nil {
		err = f.SetReason(parseReason(*req.Reason))
	}
	if err == nil && req.Description != nil {
		err = f.SetDescription(*req.Description)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, f.Snapshot())
}

func (h *justificationHandler) attach(c *gin.Context, f *justification.Form) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	if err := c.Request.ParseMultipartForm(h.maxBytes); err != nil {
		badRequest(c, "invalid multipart body: "+err.Error())
		return
	}
	docs, err := readDocuments(c.Request.MultipartForm)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(docs) == 0 {
		badRequest(c, "no documents in request")
		return
	}
	for _, d := range docs {
		if err := f.Attach(d); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	c.JSON(http.StatusOK, f.Snapshot())
}

func (h *justificationHandler) detach(c *gin.Context, f *justification.Form) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "index must be a number")
		return
	}
	if err := f.Detach(i); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, f.Snapshot())
}

func (h *justificationHandler) submit(c *gin.Context, f *justification.Form) {
	var req struct {
		StudentID string `json:"student_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	student, err := actingStudent(c, req.StudentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := f.Submit(h.submitCtx(c, student)); err != nil {
		var serr *justification.SubmissionError
		if errors.As(err, &serr) {
			// the draft survives for a retry
			status, msg := toHTTPStatus(err), serr.Err.Error()
			if status == http.StatusBadGateway {
				msg = "justification could not be submitted, please retry"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg, "form": f.Snapshot()})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": justification.SuccessMessage, "form_id": f.ID})
}

func (h *justificationHandler) close(c *gin.Context, f *justification.Form) {
	f.Close()
	c.Status(http.StatusNoContent)
}

func (h *justificationHandler) list(c *gin.Context) {
	student, err := actingStudent(c, c.Query("student_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	items, err := h.svc.Justifications(c.Request.Context(), attendance.Filter{
		StudentID: student,
		Status:    attendance.ReviewStatus(strings.ToLower(c.Query("status"))),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if items == nil {
		items = []attendance.Justification{}
	}
	c.JSON(http.StatusOK, gin.H{"justifications": items})
}

func (h *justificationHandler) review(c *gin.Context) {
	var req struct {
		Approve *bool  `json:"approve" binding:"required"`
		Note    string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	j, err := h.svc.ReviewJustification(c.Request.Context(), c.Param("id"), *req.Approve, req.Note, claims.Subject)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func parseReason(s string) justification.Reason {
	if r, ok := justification.ParseReason(s); ok {
		return r
	}
	return justification.Reason(strings.TrimSpace(s))
}

// readDocuments loads the "documents" files. Oversized files are read only far enough
// for validation to reject them.
func readDocuments(form *multipart.Form) ([]justification.Document, error) {
	if form == nil {
		return nil, nil
	}
	var out []justification.Document
	for _, hdr := range form.File["documents"] {
		f, err := hdr.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, justification.MaxDocumentSize+1))
		f.Close()
		if err != nil {
			return nil, err
		}
		doc := justification.NewDocument(hdr.Filename, data)
		if hdr.Size > doc.Size {
			doc.Size = hdr.Size
		}
		out = append(out, doc)
	}
	return out, nil
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
