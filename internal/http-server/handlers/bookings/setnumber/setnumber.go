package setnumber

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"scuola-service/api"
	"scuola-service/pkg/response"
	"scuola-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type LessonNumberSetter interface {
	SetLessonNumber(ctx context.Context, bookingID string, number int) (*api.BookingResponse, error)
}

type Request struct {
	api.LessonNumberRequest
}

type Response struct {
	response.Response
	Booking api.BookingResponse `json:"booking,omitempty"`
}

func New(log *slog.Logger, setter LessonNumberSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.setnumber.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if id == "" {
			log.Error("id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "id is required"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		booking, err := setter.SetLessonNumber(r.Context(), id, req.LessonNumber)

		if errors.Is(err, response.ErrBadRequest) {
			log.Error("lesson number out of range", slog.Int("lesson_number", req.LessonNumber))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "lesson number out of range"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to set lesson number", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to set lesson number"))
			return
		}

		log.Info("Lesson number overridden", slog.String("id", id), slog.Int("lesson_number", req.LessonNumber))

		render.JSON(w, r, Response{
			Booking: *booking,
		})
	}
}
