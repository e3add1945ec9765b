package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/roadmap-progress/internal/infrastructure"
	"github.com/pot-code/roadmap-progress/internal/infrastructure/validate"
	"github.com/pot-code/roadmap-progress/internal/progress"
)

// Subscriber source of progress change events
type Subscriber interface {
	Subscribe(buffer int) (<-chan progress.Event, func())
}

type ProgressHandler struct {
	progressUseCase progress.ProgressUseCase
	subscriber      Subscriber
	validator       validate.Validator
}

func NewProgressHandler(
	ProgressUseCase progress.ProgressUseCase,
	Subscriber Subscriber,
	Validator validate.Validator,
) *ProgressHandler {
	return &ProgressHandler{ProgressUseCase, Subscriber, Validator}
}

type groupParams struct {
	GroupID string `param:"group" validate:"required,max=128"`
}

type itemParams struct {
	GroupID string `param:"group" validate:"required,max=128"`
	ItemID  string `param:"item" validate:"required,max=128"`
}

// HandleGetOverview every catalog group and the overall percentage
func (ph *ProgressHandler) HandleGetOverview(c echo.Context) error {
	overview, err := ph.progressUseCase.Overview(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, overview)
}

func (ph *ProgressHandler) HandleGetGroup(c echo.Context) error {
	params := &groupParams{GroupID: c.Param("group")}
	if errs := ph.validator.Struct(params); errs != nil {
		return invalidParams(c, errs)
	}

	gp, err := ph.progressUseCase.GetGroup(c.Request().Context(), params.GroupID)
	if err != nil {
		return groupError(c, err)
	}
	return c.JSON(http.StatusOK, gp)
}

func (ph *ProgressHandler) HandleToggleItem(c echo.Context) error {
	params := &itemParams{GroupID: c.Param("group"), ItemID: c.Param("item")}
	if errs := ph.validator.Struct(params); errs != nil {
		return invalidParams(c, errs)
	}

	res, err := ph.progressUseCase.ToggleItem(c.Request().Context(), params.GroupID, params.ItemID)
	if err != nil {
		return groupError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (ph *ProgressHandler) HandleResetGroup(c echo.Context) error {
	params := &groupParams{GroupID: c.Param("group")}
	if errs := ph.validator.Struct(params); errs != nil {
		return invalidParams(c, errs)
	}

	res, err := ph.progressUseCase.ResetGroup(c.Request().Context(), params.GroupID)
	if err != nil {
		return groupError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (ph *ProgressHandler) HandleResetAll(c echo.Context) error {
	if err := ph.progressUseCase.ResetAll(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleStream push every progress change to the client until it goes away
func (ph *ProgressHandler) HandleStream(s *infra.Session) error {
	events, unsubscribe := ph.subscriber.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case <-s.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.WriteJSON(e); err != nil {
				return err
			}
		}
	}
}

func invalidParams(c echo.Context, errs []*validate.FieldError) error {
	traceID := c.Response().Header().Get(echo.HeaderXRequestID)
	return c.JSON(http.StatusBadRequest,
		NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", errs).SetTraceID(traceID))
}

func groupError(c echo.Context, err error) error {
	if errors.Is(err, progress.ErrUnknownGroup) {
		traceID := c.Response().Header().Get(echo.HeaderXRequestID)
		return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()).SetTraceID(traceID))
	}
	return err
}
