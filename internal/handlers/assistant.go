package handlers

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/marigold/pkg/assistant"
	"github.com/Ramsey-B/marigold/pkg/context"
	"github.com/Ramsey-B/marigold/pkg/dashboard"
	"github.com/Ramsey-B/marigold/pkg/utils"
)

// FollowUpRequest is the body of a follow-up draft request.
type FollowUpRequest struct {
	ExpectedPaymentDate string `json:"expectedPaymentDate" validate:"required"`
}

type AnalysisResponse struct {
	StudentID string `json:"studentId"`
	assistant.DelayPrediction
}

type FollowUpResponse struct {
	StudentID string `json:"studentId"`
	assistant.FollowUpDraft
}

// AssistantHandler runs the assistant operations against a student's live detail.
type AssistantHandler struct {
	assistant Assistant
	dashboard Dashboard
	logger    ectologger.Logger
}

// NewAssistantHandler creates a new assistant handler. A nil assistant answers 503.
func NewAssistantHandler(assistant Assistant, dashboard Dashboard, logger ectologger.Logger) *AssistantHandler {
	return &AssistantHandler{assistant: assistant, dashboard: dashboard, logger: logger}
}

// Analysis predicts whether the student will pay late
// POST /api/v1/students/:id/analysis
func (h *AssistantHandler) Analysis(c echo.Context) error {
	detail, err := h.detail(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	prediction, err := h.assistant.PredictDelay(ctx, assistant.DelayPredictionInput{
		StudentID:      detail.Student.ID,
		PaymentHistory: assistant.History(detail.Payments),
		StudentDetails: assistant.StudentDetails{
			FullName: detail.Student.FullName,
			Phone:    detail.Student.Phone,
			Balance:  detail.Student.TotalPaid.InexactFloat64(),
			Due:      detail.Student.TotalDue.InexactFloat64(),
		},
	})
	if err != nil {
		return h.assistantError(c, err)
	}

	return SuccessResponse(c, AnalysisResponse{StudentID: detail.Student.ID, DelayPrediction: prediction})
}

// FollowUp drafts a reminder for the student
// POST /api/v1/students/:id/follow-up
func (h *AssistantHandler) FollowUp(c echo.Context) error {
	detail, err := h.detail(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[FollowUpRequest](c)
	if err != nil {
		return err
	}

	amountDue := 0.0
	if detail.Student.HasDue() {
		amountDue = detail.Student.TotalDue.InexactFloat64()
	}

	ctx := c.Request().Context()
	draft, err := h.assistant.DraftFollowUp(ctx, assistant.FollowUpInput{
		StudentID:           detail.Student.ID,
		StudentName:         detail.Student.FullName,
		AmountDue:           amountDue,
		PaymentHistory:      assistant.History(detail.Payments),
		ExpectedPaymentDate: req.ExpectedPaymentDate,
	})
	if err != nil {
		return h.assistantError(c, err)
	}

	return SuccessResponse(c, FollowUpResponse{StudentID: detail.Student.ID, FollowUpDraft: draft})
}

func (h *AssistantHandler) detail(c echo.Context) (dashboard.Detail, error) {
	if h.assistant == nil {
		return dashboard.Detail{}, httperror.NewHTTPError(http.StatusServiceUnavailable, "assistant is not configured").
			AddMetaValue("variables", []string{"ASSISTANT_API_KEY", "ASSISTANT_BASE_URL"})
	}

	id, err := StudentID(c)
	if err != nil {
		return dashboard.Detail{}, err
	}
	c.SetRequest(c.Request().WithContext(context.SetStudentID(c.Request().Context(), id)))

	detail, ok := h.dashboard.Views().Detail(id)
	if !ok {
		return dashboard.Detail{}, NotFound("student not found")
	}
	return detail, nil
}

func (h *AssistantHandler) assistantError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, assistant.ErrInFlight):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, assistant.ErrInvalidInput):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.logger.WithContext(c.Request().Context()).WithError(err).Warn("Assistant request failed")
	return httperror.NewHTTPError(http.StatusBadGateway, "the assistant could not answer, please try again").
		AddMetaValue("retryable", assistant.Retryable(err))
}
