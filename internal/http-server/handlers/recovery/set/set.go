package set

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

type RecoverySetter interface {
	SetRecoveryCount(ctx context.Context, username string, count int) error
}

type Request struct {
	api.RecoveryRequest
}

type Response struct {
	response.Response
	Username        string `json:"username,omitempty"`
	RecoveryLessons int    `json:"recovery_lessons"`
}

func New(log *slog.Logger, setter RecoverySetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recovery.set.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		username := chi.URLParam(r, "username")
		if username == "" {
			log.Error("username is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "username is required"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		err := setter.SetRecoveryCount(r.Context(), username, req.RecoveryLessons)

		if errors.Is(err, response.ErrBadRequest) {
			log.Error("negative recovery count", slog.Int("recovery_lessons", req.RecoveryLessons))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "recovery count must not be negative"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("account not found", slog.String("username", username))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to set recovery count", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to set recovery count"))
			return
		}

		log.Info("Recovery count set", slog.String("username", username), slog.Int("recovery_lessons", req.RecoveryLessons))

		render.JSON(w, r, Response{
			Username:        username,
			RecoveryLessons: req.RecoveryLessons,
		})
	}
}
