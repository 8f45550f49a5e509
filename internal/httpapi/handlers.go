// Package httpapi is the management surface the external dashboard talks
// to. Handlers stay thin: parse/validate input, call internal services,
// return JSON. Lifecycle mutations always go through the call queue service,
// never straight to the store.
package httpapi

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicesurvey/internal/audit"
	"voicesurvey/internal/auth"
	"voicesurvey/internal/callqueue"
	"voicesurvey/internal/interpret"
	"voicesurvey/internal/survey"
)

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Auth    *auth.Manager
	Queue   *callqueue.Service
	Surveys survey.Repository
	Audit   *audit.Service

	// AllowSeeding enables the demo-data route; never set in production.
	AllowSeeding bool

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate
// credentials against the dashboard's identity provider.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Surveys ---

type createSurveyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (h Handlers) CreateSurvey(c *gin.Context) {
	var req createSurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Name == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	now := h.now().UTC()
	s := survey.Survey{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Surveys.CreateSurvey(c.Request.Context(), s); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "survey creation failed"})
		return
	}
	c.JSON(http.StatusCreated, s)
}

type createQuestionRequest struct {
	SurveyID string `json:"survey_id"`
	Position int    `json:"position"`

	Prompt          string   `json:"prompt"`
	ResponseType    string   `json:"response_type,omitempty"`
	Options         []string `json:"options,omitempty"`
	FollowUpTrigger string   `json:"follow_up_trigger,omitempty"`
	FollowUpText    string   `json:"follow_up_text,omitempty"`
}

// CreateQuestion adds a question to the bank and links it into the survey at
// the given position.
func (h Handlers) CreateQuestion(c *gin.Context) {
	var req createQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.SurveyID == "" || req.Prompt == "" || req.Position <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "survey_id, prompt, position required"})
		return
	}
	if _, err := h.Surveys.GetSurvey(c.Request.Context(), req.SurveyID); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown survey"})
		return
	}

	now := h.now().UTC()
	q := survey.Question{
		ID:              uuid.NewString(),
		Prompt:          req.Prompt,
		ResponseType:    survey.ResponseType(req.ResponseType),
		Options:         req.Options,
		FollowUpTrigger: req.FollowUpTrigger,
		FollowUpText:    req.FollowUpText,
		CreatedAt:       now,
	}
	link := survey.SurveyQuestionLink{
		ID:         uuid.NewString(),
		SurveyID:   req.SurveyID,
		QuestionID: q.ID,
		Position:   req.Position,
		CreatedAt:  now,
	}
	// One transaction: a rejected link must not leave an orphan question.
	if err := h.Surveys.CreateQuestionWithLink(c.Request.Context(), q, link); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "question creation failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"question": q, "link": link})
}

func (h Handlers) ListQuestions(c *gin.Context) {
	surveyID := c.Param("survey_id")
	qs, err := h.Surveys.QuestionsForSurvey(c.Request.Context(), surveyID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "question lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": qs})
}

// --- Recipients ---

type createRecipientRequest struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone"`
}

func (h Handlers) CreateRecipient(c *gin.Context) {
	var req createRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}

	now := h.now().UTC()
	r := survey.Recipient{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Surveys.CreateRecipient(c.Request.Context(), r); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "recipient creation failed"})
		return
	}
	c.JSON(http.StatusCreated, r)
}

// ListResponses returns all interpreted answers recorded for a recipient.
func (h Handlers) ListResponses(c *gin.Context) {
	recipientID := c.Param("recipient_id")
	rows, err := h.Surveys.ResponsesForRecipient(c.Request.Context(), recipientID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "response lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": rows})
}

// --- Call queue ---

type enqueueRequest struct {
	RecipientID string `json:"recipient_id"`
	SurveyID    string `json:"survey_id"`

	VoiceID    string     `json:"voice_id,omitempty"`
	Language   string     `json:"language,omitempty"`
	UseAudio   bool       `json:"use_audio"`
	ScheduleAt *time.Time `json:"schedule_at,omitempty"`

	// StartNow places the outbound call immediately after enqueueing.
	StartNow bool `json:"start_now"`
}

func (h Handlers) EnqueueCall(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	voice := callqueue.VoiceOptions{VoiceID: req.VoiceID, Language: req.Language, UseAudio: req.UseAudio}
	a, err := h.Queue.Enqueue(c.Request.Context(), req.RecipientID, req.SurveyID, voice, req.ScheduleAt)
	if err != nil {
		if errors.Is(err, callqueue.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "recipient_id, survey_id required"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}
	h.logQueueAction(c, "attempt enqueued", a)

	if req.StartNow && req.ScheduleAt == nil {
		started, err := h.Queue.StartCall(c.Request.Context(), a.ID)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, callqueue.ErrCapacity) {
				status = http.StatusTooManyRequests
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "attempt": a})
			return
		}
		a = started
		h.logQueueAction(c, "call started", a)
	}

	c.JSON(http.StatusCreated, a)
}

func (h Handlers) StartCall(c *gin.Context) {
	id := c.Param("attempt_id")
	a, err := h.Queue.StartCall(c.Request.Context(), id)
	if err != nil {
		h.writeQueueError(c, err)
		return
	}
	h.logQueueAction(c, "call started", a)
	c.JSON(http.StatusOK, a)
}

func (h Handlers) RetryCall(c *gin.Context) {
	id := c.Param("attempt_id")
	a, err := h.Queue.Retry(c.Request.Context(), id)
	if err != nil {
		h.writeQueueError(c, err)
		return
	}
	h.logQueueAction(c, "attempt retried", a)
	c.JSON(http.StatusOK, a)
}

func (h Handlers) GetAttempt(c *gin.Context) {
	a, err := h.Queue.Get(c.Request.Context(), c.Param("attempt_id"))
	if err != nil {
		h.writeQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) ListAttempts(c *gin.Context) {
	f := callqueue.Filter{
		Status:      callqueue.Status(c.Query("status")),
		RecipientID: c.Query("recipient_id"),
		SurveyID:    c.Query("survey_id"),
	}
	attempts, err := h.Queue.List(c.Request.Context(), f)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "attempt lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// Consolidate merges historical duplicate attempts. Admin-only maintenance.
func (h Handlers) Consolidate(c *gin.Context) {
	merged, err := h.Queue.Consolidate(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "consolidation failed"})
		return
	}
	if h.Audit != nil {
		userID, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		meta := fmt.Sprintf(`{"merged":%d}`, merged)
		// Best-effort; maintenance is not blocked on audit.
		_ = h.Audit.LogMaintenance(c.Request.Context(), userID, role, c.ClientIP(), "consolidation run", meta)
	}
	c.JSON(http.StatusOK, gin.H{"merged": merged})
}

// --- Demo seeding ---

type seedRequest struct {
	SurveyID    string `json:"survey_id"`
	RecipientID string `json:"recipient_id"`
}

// SeedResponses fabricates one random 1-5 answer per survey question for
// demos and dashboard development. Disabled outside non-production
// environments; the live turn loop never fabricates values.
func (h Handlers) SeedResponses(c *gin.Context) {
	if !h.AllowSeeding {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "seeding disabled"})
		return
	}
	var req seedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.SurveyID == "" || req.RecipientID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "survey_id, recipient_id required"})
		return
	}

	questions, err := h.Surveys.QuestionsForSurvey(c.Request.Context(), req.SurveyID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "question lookup failed"})
		return
	}

	rng := rand.New(rand.NewSource(h.now().UnixNano()))
	interp := interpret.New()
	created := 0
	for _, q := range questions {
		v := interpret.RandomScaleValue(rng)
		raw := fmt.Sprintf("%d", v)
		res := interp.Interpret(raw)
		row := survey.Response{
			ID:           uuid.NewString(),
			RecipientID:  req.RecipientID,
			QuestionID:   q.ID,
			RawText:      raw,
			NumericValue: res.Numeric,
			Insight:      res.Insight,
			CallSID:      "seed",
			CreatedAt:    h.now().UTC(),
		}
		if err := h.Surveys.AppendResponse(c.Request.Context(), row); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "seed append failed"})
			return
		}
		created++
	}
	c.JSON(http.StatusCreated, gin.H{"seeded": created})
}

func (h Handlers) writeQueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, callqueue.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown attempt"})
	case errors.Is(err, callqueue.ErrAlreadyCompleted):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "attempt already completed"})
	case errors.Is(err, callqueue.ErrCapacity):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "concurrent call cap reached"})
	default:
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func (h Handlers) logQueueAction(c *gin.Context, message string, a callqueue.CallAttempt) {
	if h.Audit == nil {
		return
	}
	userID, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	_ = h.Audit.LogQueueAction(c.Request.Context(), userID, role, c.ClientIP(), message, a.ID, a.SurveyID, a.RecipientID)
}
