package list

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

// Scope selects which partition of the booking history a route serves.
type Scope string

const (
	ScopeFuture Scope = "future"
	ScopePast   Scope = "past"
	ScopeAll    Scope = "all"
)

type BookingLister interface {
	ListFutureBookings(ctx context.Context, username string) ([]*api.BookingResponse, error)
	ListPastBookings(ctx context.Context, username string) ([]*api.BookingResponse, error)
	ListAllBookings(ctx context.Context) ([]*api.BookingResponse, error)
}

type Response struct {
	response.Response
	Bookings []api.BookingResponse `json:"bookings"`
}

func New(log *slog.Logger, lister BookingLister, scope Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.list.New"

		log = log.With(
			slog.String("op", op),
			slog.String("scope", string(scope)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		principal, ok := auth.FromContext(r.Context())
		if !ok {
			log.Error("no principal in context")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error(string(response.UNAUTHORIZED), "authentication required"))
			return
		}

		// Admins may inspect another student's history.
		username := principal.Username
		if requested := r.URL.Query().Get("username"); requested != "" {
			if !principal.IsAdmin() {
				log.Warn("student requested another user's bookings")
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error(string(response.FORBIDDEN), "operation not allowed"))
				return
			}
			username = requested
		}

		var (
			bookings []*api.BookingResponse
			err      error
		)

		switch scope {
		case ScopeFuture:
			bookings, err = lister.ListFutureBookings(r.Context(), username)
		case ScopePast:
			bookings, err = lister.ListPastBookings(r.Context(), username)
		case ScopeAll:
			bookings, err = lister.ListAllBookings(r.Context())
		}

		if err != nil {
			log.Error("Failed to list bookings", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list bookings"))
			return
		}

		log.Info("Bookings retrieved", slog.Int("count", len(bookings)))

		result := make([]api.BookingResponse, len(bookings))
		for i, booking := range bookings {
			result[i] = *booking
		}

		render.JSON(w, r, Response{
			Bookings: result,
		})
	}
}
