package login

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

type Authenticator interface {
	Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error)
}

type Request struct {
	api.LoginRequest
}

type Response struct {
	response.Response
	api.LoginResponse
}

func New(log *slog.Logger, authenticator Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.auth.login.New"

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

		if req.Username == "" || req.Password == "" {
			log.Error("username or password is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "username and password are required"))
			return
		}

		result, err := authenticator.Login(r.Context(), &req.LoginRequest)

		if errors.Is(err, response.ErrInvalidCredentials) {
			log.Warn("invalid credentials", slog.String("username", req.Username))
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error(string(response.INVALID_CREDENTIALS), "invalid credentials"))
			return
		}

		if err != nil {
			log.Error("Failed to log in", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to log in"))
			return
		}

		log.Info("Logged in", slog.String("username", req.Username))

		render.JSON(w, r, Response{
			LoginResponse: *result,
		})
	}
}
