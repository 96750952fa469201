package get

import (
	"context"
	"log/slog"
	"net/http"

	"scuola-service/api"
	"scuola-service/internal/auth"
	"scuola-service/pkg/response"
	"scuola-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type NotificationLister interface {
	ListNotifications(ctx context.Context, username string) ([]*api.NotificationResponse, error)
}

type Response struct {
	response.Response
	Notifications []api.NotificationResponse `json:"notifications"`
}

func New(log *slog.Logger, lister NotificationLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.notifications.get.New"

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

		notifications, err := lister.ListNotifications(r.Context(), principal.Username)
		if err != nil {
			log.Error("Failed to list notifications", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list notifications"))
			return
		}

		log.Info("Notifications retrieved", slog.Int("count", len(notifications)))

		result := make([]api.NotificationResponse, len(notifications))
		for i, n := range notifications {
			result[i] = *n
		}

		render.JSON(w, r, Response{
			Notifications: result,
		})
	}
}
