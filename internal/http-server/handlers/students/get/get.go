package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"scuola-service/api"
	"scuola-service/internal/auth"
	"scuola-service/pkg/response"
	"scuola-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type StudentGetter interface {
	GetStudent(ctx context.Context, username string) (*api.StudentResponse, error)
	ListStudents(ctx context.Context) ([]*api.StudentResponse, error)
}

type Response struct {
	response.Response
	Students []api.StudentResponse `json:"students,omitempty"`
	Student  *api.StudentResponse  `json:"student,omitempty"`
}

func New(log *slog.Logger, getter StudentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.students.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		principal, ok := auth.FromContext(r.Context())
		if !ok {
			log.Error("no principal in context")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error(string(response.UNAUTHORIZED), "authentication required"))
			return
		}

		username := chi.URLParam(r, "username")

		if username != "" {
			// Students may only read their own profile.
			if !principal.IsAdmin() && username != principal.Username {
				log.Warn("profile access denied", slog.String("username", username))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error(string(response.FORBIDDEN), "operation not allowed"))
				return
			}

			student, err := getter.GetStudent(r.Context(), username)

			if errors.Is(err, response.ErrNotFound) {
				log.Error("account not found", slog.String("username", username))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get student", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get student"))
				return
			}

			log.Info("Student retrieved", slog.String("username", username))
			render.JSON(w, r, Response{
				Student: student,
			})
			return
		}

		// Roster is admin-only, enforced by routing.
		students, err := getter.ListStudents(r.Context())
		if err != nil {
			log.Error("Failed to list students", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list students"))
			return
		}

		log.Info("Students retrieved", slog.Int("count", len(students)))

		result := make([]api.StudentResponse, len(students))
		for i, student := range students {
			result[i] = *student
		}

		render.JSON(w, r, Response{
			Students: result,
		})
	}
}
