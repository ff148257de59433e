// Package assistant asks an external language model for delay predictions and follow-up
// drafts. Inputs are validated before the call and answers after it; a failed call is a
// recoverable error, never a crash.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/marigold/pkg/metrics"
	"github.com/Ramsey-B/marigold/pkg/tracing"
	"github.com/Ramsey-B/marigold/pkg/utils"
)

var (
	// ErrInFlight means the same request for the same student is still running.
	ErrInFlight = errors.New("an assistant request for this student is already in progress")
	// ErrInvalidInput means the request failed validation and was never sent.
	ErrInvalidInput = errors.New("invalid assistant input")
	// ErrInvalidOutput means the model answered with something other than the schema.
	ErrInvalidOutput = errors.New("invalid assistant output")
	// ErrUnavailable means the model call itself failed.
	ErrUnavailable = errors.New("assistant unavailable")
)

// Retryable reports whether repeating the request may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInvalidOutput)
}

type Gateway struct {
	model   Model
	prompts *Prompts
	guard   Guard
	logger  ectologger.Logger
	timeout time.Duration
}

func New(model Model, guard Guard, logger ectologger.Logger, timeout time.Duration) (*Gateway, error) {
	prompts, err := LoadPrompts()
	if err != nil {
		return nil, err
	}
	if guard == nil {
		guard = NewLocalGuard()
	}
	return &Gateway{model: model, prompts: prompts, guard: guard, logger: logger, timeout: timeout}, nil
}

// PredictDelay asks whether the student is likely to pay late.
func (g *Gateway) PredictDelay(ctx context.Context, input DelayPredictionInput) (DelayPrediction, error) {
	input.PaymentHistory = trimHistory(input.PaymentHistory)
	return invoke(ctx, g, OperationPredictDelay, input.StudentID, input, func(out delayPredictionOutput) (DelayPrediction, error) {
		days := *out.SuggestedFollowUpDays
		if days != math.Trunc(days) {
			return DelayPrediction{}, fmt.Errorf("suggestedFollowUpDays %v is not a whole number", days)
		}
		return DelayPrediction{
			IsDelayLikely:         *out.IsDelayLikely,
			SuggestedFollowUpDays: int(days),
			FollowUpMessage:       out.FollowUpMessage,
		}, nil
	})
}

// DraftFollowUp drafts a reminder message and rates its urgency.
func (g *Gateway) DraftFollowUp(ctx context.Context, input FollowUpInput) (FollowUpDraft, error) {
	input.PaymentHistory = trimHistory(input.PaymentHistory)
	return invoke(ctx, g, OperationDraftFollowUp, input.StudentID, input, func(out followUpOutput) (FollowUpDraft, error) {
		return FollowUpDraft{Message: out.Message, Urgency: Urgency(out.Urgency)}, nil
	})
}

func invoke[In, Raw, Out any](ctx context.Context, g *Gateway, operation, studentID string, input In, convert func(Raw) (Out, error)) (result Out, err error) {
	ctx, span := tracing.StartSpan(ctx, "assistant."+operation)
	defer span.End()

	start := time.Now()
	log := g.logger.WithContext(ctx).WithFields(map[string]any{
		"operation":  operation,
		"student_id": studentID,
	})
	defer func() {
		metrics.RecordAssistantRequest(operation, status(err), time.Since(start).Seconds())
	}()

	if _, err := utils.Validate(input); err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	release, err := g.guard.Acquire(ctx, operation+":"+studentID)
	if err != nil {
		log.Warn("Assistant request rejected, another is in flight")
		return result, err
	}
	defer release()

	completion, err := g.prompts.Render(operation, input)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	answer, err := g.model.Complete(callCtx, completion)
	if err != nil {
		log.WithError(err).Error("Assistant call failed")
		return result, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var raw Raw
	if err := json.Unmarshal(answer, &raw); err != nil {
		log.WithError(err).Warn("Assistant answered with malformed JSON")
		return result, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	if _, err := utils.Validate(raw); err != nil {
		log.WithError(err).Warn("Assistant answer failed validation")
		return result, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	result, err = convert(raw)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}

	log.Infof("Assistant %s completed in %s", operation, time.Since(start))
	return result, nil
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInFlight):
		return "in_flight"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidOutput):
		return "invalid_output"
	default:
		return "error"
	}
}
