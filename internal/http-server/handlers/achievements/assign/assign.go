package assign

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

type AchievementAssigner interface {
	AssignAchievement(ctx context.Context, bookingID string, label string) (*api.BookingResponse, error)
}

type Request struct {
	api.AchievementRequest
}

type Response struct {
	response.Response
	Booking api.BookingResponse `json:"booking,omitempty"`
}

func New(log *slog.Logger, assigner AchievementAssigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.achievements.assign.New"

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

		log.Info("Request body decoded", slog.String("achievement", req.Achievement))

		booking, err := assigner.AssignAchievement(r.Context(), id, req.Achievement)

		if errors.Is(err, response.ErrBadRequest) {
			log.Error("unknown achievement label", slog.String("achievement", req.Achievement))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "unknown achievement label"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to assign achievement", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to assign achievement"))
			return
		}

		log.Info("Achievement assigned", slog.String("id", id), slog.String("achievement", req.Achievement))

		render.JSON(w, r, Response{
			Booking: *booking,
		})
	}
}
