package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"attendx/internal/attendance"
	"attendx/internal/auth"
	"attendx/internal/config"
	"attendx/internal/insights"
	"attendx/internal/model"
	"attendx/internal/queue"
	"attendx/internal/store"
)

// Handler binds the attendance core to the HTTP surface.
type Handler struct {
	cfg        config.App
	store      store.Store
	validator  *attendance.Validator
	lifecycle  *attendance.Lifecycle
	aggregator *attendance.Aggregator
	notifier   *attendance.Notifier
	summarizer insights.Summarizer
	queue      queue.Queue
}

// New wires a handler around the core services.
func New(cfg config.App, st store.Store, v *attendance.Validator, lc *attendance.Lifecycle,
	agg *attendance.Aggregator, n *attendance.Notifier, sum insights.Summarizer, q queue.Queue) *Handler {
	return &Handler{
		cfg:        cfg,
		store:      st,
		validator:  v,
		lifecycle:  lc,
		aggregator: agg,
		notifier:   n,
		summarizer: sum,
		queue:      q,
	}
}

// Register mounts all routes on the engine. Lecturer routes sit behind JWT.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/v1/lecturers/login", h.Login)
	r.GET("/v1/catalog", h.Catalog)
	r.GET("/v1/sessions/:id", h.GetSession)
	r.POST("/v1/portal/:id/submissions", h.Submit)

	lect := r.Group("/v1", auth.LecturerAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	lect.POST("/sessions", h.StartSession)
	lect.GET("/sessions", h.ListSessions)
	lect.POST("/sessions/:id/end", h.EndSession)
	lect.GET("/sessions/:id/roll", h.Roll)
	lect.GET("/sessions/:id/watch", h.Watch)
	lect.GET("/sessions/:id/eligibility", h.SessionEligibility)
	lect.GET("/courses/:id/eligibility", h.CourseEligibility)
	lect.POST("/courses/:id/insights", h.CourseInsights)
	lect.POST("/admin/reset", h.Reset)
}

// validationStatus maps rejection kinds to HTTP statuses.
func validationStatus(kind attendance.Kind) int {
	switch kind {
	case attendance.KindSessionInactive:
		return http.StatusGone
	case attendance.KindDeviceLocked, attendance.KindInvalidKey, attendance.KindOutOfRange:
		return http.StatusForbidden
	case attendance.KindDuplicateSubmission:
		return http.StatusConflict
	case attendance.KindLocationUnavailable, attendance.KindFaceCaptureFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func respondErr(c *gin.Context, err error) {
	var verr *attendance.ValidationError
	if errors.As(err, &verr) {
		c.JSON(validationStatus(verr.Kind), gin.H{"error": verr.Message, "kind": string(verr.Kind)})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if errors.Is(err, attendance.ErrInvalidSelection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Printf("internal error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// ---------- Auth ----------

type loginRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// Login issues lecturer tokens. Credential hardening is out of scope; any
// well-formed identity gets a token, matching the original portal.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lecturerID := uuid.NewString()
	tokens, err := auth.Issue(lecturerID, req.Name, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"lecturer_id":   lecturerID,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// ---------- Catalog ----------

// Catalog returns the departments, courses and levels the start form offers.
func (h *Handler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"departments": model.Departments,
		"courses":     model.Courses,
		"levels":      model.Levels,
	})
}

// ---------- Sessions ----------

type startSessionRequest struct {
	attendance.Selection
	Location *model.Location `json:"location"`
}

func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := c.MustGet("claims").(auth.Claims)
	sess, err := h.lifecycle.Start(c.Request.Context(), claims.Subject, req.Selection, req.Location)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session":    sess,
		"portal_url": attendance.PortalURL(h.cfg.PortalOrigin, h.cfg.PortalPath, sess.ID),
		"key_ttl_s":  int(h.lifecycle.KeyTimeLeft(sess).Seconds()),
	})
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.store.Sessions.ListSessions(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession is the unauthenticated portal view: enough for the student
// form, without leaking the session key.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.store.Sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         sess.ID,
		"course_id":  sess.CourseID,
		"level":      sess.Level,
		"start_time": sess.StartTime,
		"active":     sess.Active,
	})
}

func (h *Handler) EndSession(c *gin.Context) {
	sess, err := h.lifecycle.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *Handler) Roll(c *gin.Context) {
	records, err := h.store.Records.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// Watch streams change events for one session so dashboards do not have to
// poll the roll endpoint. Plain JSON lines; the client closes when done.
func (h *Handler) Watch(c *gin.Context) {
	events, cancel := h.notifier.Subscribe(c.Param("id"))
	defer cancel()

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	enc := json.NewEncoder(c.Writer)
	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			if err := enc.Encode(evt); err != nil {
				return false
			}
			return true
		case <-c.Request.Context().Done():
			return false
		case <-time.After(30 * time.Second):
			// keepalive so proxies do not cut the stream
			_, err := w.Write([]byte("\n"))
			return err == nil
		}
	})
}

// ---------- Submissions ----------

type submitRequest struct {
	SessionKey string          `json:"session_key" binding:"required"`
	Name       string          `json:"name" binding:"required"`
	MatricNo   string          `json:"matric_no" binding:"required"`
	Department string          `json:"department" binding:"required"`
	DeviceID   string          `json:"device_id"`
	Location   *model.Location `json:"location"`
	FaceImage  string          `json:"face_image"`
	Camera     bool            `json:"camera_active"`
}

func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.validator.Validate(c.Request.Context(), attendance.Submission{
		SessionID:    c.Param("id"),
		SessionKey:   req.SessionKey,
		Name:         req.Name,
		MatricNo:     req.MatricNo,
		Department:   req.Department,
		DeviceID:     req.DeviceID,
		Coords:       req.Location,
		FaceImage:    req.FaceImage,
		CameraActive: req.Camera,
	})
	if err != nil {
		respondErr(c, err)
		return
	}

	if h.queue != nil && rec.FaceImage != "" {
		if err := h.queue.Publish(c.Request.Context(), queue.Message{Type: queue.TypeSubmission, RecordID: rec.ID}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"record":  rec,
		"message": "Attendance successfully logged for " + rec.StudentName + "!",
	})
}

// ---------- Eligibility & insights ----------

func (h *Handler) CourseEligibility(c *gin.Context) {
	stats, err := h.aggregator.CourseStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *Handler) SessionEligibility(c *gin.Context) {
	stats, err := h.aggregator.SessionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// CourseInsights returns the summarizer's text. The summarizer soft-fails,
// so this endpoint always answers 200 with some string.
func (h *Handler) CourseInsights(c *gin.Context) {
	stats, err := h.aggregator.CourseStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": h.summarizer.Summarize(c.Request.Context(), stats)})
}

// ---------- Admin ----------

// Reset wipes sessions, records and device locks.
func (h *Handler) Reset(c *gin.Context) {
	if err := h.store.Reset(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
