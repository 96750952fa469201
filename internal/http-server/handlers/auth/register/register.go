package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"scuola-service/api"
	"scuola-service/pkg/response"
	"scuola-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Registrar interface {
	Register(ctx context.Context, req *api.RegisterRequest) error
}

type Request struct {
	api.RegisterRequest
}

type Response struct {
	response.Response
	Username string `json:"username,omitempty"`
}

func New(log *slog.Logger, registrar Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.auth.register.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		log.Info("Request body decoded", slog.String("username", req.Username))

		if req.Username == "" {
			log.Error("username is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "username is required"))
			return
		}

		if req.Password == "" {
			log.Error("password is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "password is required"))
			return
		}

		err := registrar.Register(r.Context(), &req.RegisterRequest)

		if errors.Is(err, response.ErrForbidden) {
			log.Error("wrong admin enrollment code")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "wrong admin code"))
			return
		}

		if errors.Is(err, response.ErrAccountExists) {
			log.Error("account already exists", slog.String("username", req.Username))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.ACCOUNT_EXISTS), "account already exists"))
			return
		}

		if err != nil {
			log.Error("Failed to register account", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to register account"))
			return
		}

		log.Info("Account registered", slog.String("username", req.Username))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Username: req.Username,
		})
	}
}
