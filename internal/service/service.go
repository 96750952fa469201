package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scuola-service/api"
	"scuola-service/internal/auth"
	"scuola-service/internal/lock"
	"scuola-service/internal/models"
	"scuola-service/pkg/response"

	"golang.org/x/crypto/bcrypt"
)

const dateLayout = "2006-01-02"

type Service struct {
	store    Store
	locker   lock.Locker
	notifier Notifier
	cfg      Config
}

// Config carries the booking policy knobs resolved at startup.
type Config struct {
	ClosedDays map[time.Weekday]struct{}
	Slots      []string
	Cycle      int
	AdminKey   string
	JWTSecret  string
	TokenTTL   time.Duration
}

type Store interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, username string) (*models.User, error)
	ListStudents(ctx context.Context) ([]*models.User, error)
	SetRecoveryLessons(ctx context.Context, username string, count int) error
	SetAchievementFlag(ctx context.Context, username string, label string) error

	// Bookings
	CreateBooking(ctx context.Context, booking *models.Booking, cycle int) (int, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CountBookings(ctx context.Context, username string) (int, error)
	ListFutureBookings(ctx context.Context, username string) ([]*models.Booking, error)
	ListPastBookings(ctx context.Context, username string) ([]*models.Booking, error)
	ListAllBookings(ctx context.Context) ([]*models.Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	SetLessonNumber(ctx context.Context, id string, number int) error
	SetBookingAchievement(ctx context.Context, id string, label *string) error
}

type Notifier interface {
	Notify(heading, message string, usernames ...string)
	NotifyRole(role models.Role, heading, message string)
	List(ctx context.Context, username string) ([]*models.Notification, error)
}

func NewService(store Store, locker lock.Locker, notifier Notifier, cfg Config) *Service {
	if cfg.Cycle <= 0 {
		cfg.Cycle = 8
	}

	return &Service{store: store, locker: locker, notifier: notifier, cfg: cfg}
}

// #### user directory ####

func (s *Service) Register(ctx context.Context, req *api.RegisterRequest) error {
	const op = "service.Register"

	role := models.RoleStudent
	if req.AdminCode != "" {
		if req.AdminCode != s.cfg.AdminKey {
			return fmt.Errorf("%s: %w", op, response.ErrForbidden)
		}
		role = models.RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         role,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, response.ErrAccountExists) {
			return fmt.Errorf("%s: %w", op, response.ErrAccountExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	const op = "service.Login"

	user, err := s.store.GetUser(ctx, req.Username)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, response.ErrInvalidCredentials)
	}

	token, err := auth.IssueToken(user.Username, user.Role, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &api.LoginResponse{Token: token, Role: string(user.Role)}, nil
}

func (s *Service) GetStudent(ctx context.Context, username string) (*api.StudentResponse, error) {
	const op = "service.GetStudent"

	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next, err := s.NextLessonNumber(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &api.StudentResponse{
		Username:         user.Username,
		Role:             string(user.Role),
		RecoveryLessons:  user.RecoveryLessons,
		Achievements:     user.Achievements,
		NextLessonNumber: next,
	}, nil
}

func (s *Service) ListStudents(ctx context.Context) ([]*api.StudentResponse, error) {
	const op = "service.ListStudents"

	users, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.StudentResponse, 0, len(users))
	for _, user := range users {
		next, err := s.NextLessonNumber(ctx, user.Username)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		result = append(result, &api.StudentResponse{
			Username:         user.Username,
			Role:             string(user.Role),
			RecoveryLessons:  user.RecoveryLessons,
			Achievements:     user.Achievements,
			NextLessonNumber: next,
		})
	}

	return result, nil
}

// #### booking ledger ####

// NextLessonNumber is always rederived from the raw booking count. The
// stored lesson_number is a snapshot taken at insert time, never a
// counter that could drift.
func (s *Service) NextLessonNumber(ctx context.Context, username string) (int, error) {
	const op = "service.NextLessonNumber"

	count, err := s.store.CountBookings(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count%s.cfg.Cycle + 1, nil
}

func (s *Service) PlaceBooking(ctx context.Context, username string, req *api.BookingRequest) (*api.BookingResponse, error) {
	const op = "service.PlaceBooking"

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid date: %w", op, response.ErrBadRequest)
	}

	if !s.validSlot(req.Slot) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrInvalidSlot)
	}

	// Policy check happens before any write: a booking on a closed day
	// must leave no row behind.
	if _, closed := s.cfg.ClosedDays[date.Weekday()]; closed {
		return nil, fmt.Errorf("%s: %w", op, response.ErrClosedDay)
	}

	lockKey := lock.BookingKey(username, req.Date, req.Slot)

	locked, err := s.locker.Lock(ctx, lockKey, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: lock error: %w", op, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		_ = s.locker.Unlock(ctx, lockKey)
	}()

	booking := &models.Booking{
		Username:    username,
		BookingDate: date,
		Slot:        req.Slot,
	}

	lessonNumber, err := s.store.CreateBooking(ctx, booking, s.cfg.Cycle)
	if err != nil {
		if errors.Is(err, response.ErrDuplicateBooking) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrDuplicateBooking)
		}
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Best effort, never rolls back the insert.
	s.notifier.NotifyRole(models.RoleAdmin, "New booking",
		fmt.Sprintf("%s booked lesson %d on %s (%s)", username, lessonNumber, req.Date, req.Slot))

	if lessonNumber == s.cfg.Cycle {
		s.notifier.Notify("Package complete",
			fmt.Sprintf("Lesson %d of %d booked: your package is complete", lessonNumber, s.cfg.Cycle),
			username)
	}

	return bookingResponse(booking), nil
}

func (s *Service) CancelBooking(ctx context.Context, actor *auth.Principal, bookingID string) error {
	const op = "service.CancelBooking"

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if !actor.IsAdmin() && booking.Username != actor.Username {
		return fmt.Errorf("%s: %w", op, response.ErrForbidden)
	}

	if err := s.store.DeleteBooking(ctx, bookingID); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if actor.IsAdmin() && booking.Username != actor.Username {
		s.notifier.Notify("Booking cancelled",
			fmt.Sprintf("Your lesson on %s (%s) was cancelled by the school",
				booking.BookingDate.Format(dateLayout), booking.Slot),
			booking.Username)
	}

	return nil
}

func (s *Service) ListFutureBookings(ctx context.Context, username string) ([]*api.BookingResponse, error) {
	const op = "service.ListFutureBookings"

	bookings, err := s.store.ListFutureBookings(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookingResponses(bookings), nil
}

func (s *Service) ListPastBookings(ctx context.Context, username string) ([]*api.BookingResponse, error) {
	const op = "service.ListPastBookings"

	bookings, err := s.store.ListPastBookings(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookingResponses(bookings), nil
}

func (s *Service) ListAllBookings(ctx context.Context) ([]*api.BookingResponse, error) {
	const op = "service.ListAllBookings"

	bookings, err := s.store.ListAllBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookingResponses(bookings), nil
}

// #### admin corrections ####

// SetLessonNumber overwrites the stored number on one booking. It is
// the sanctioned manual correction path and does not cascade: later
// bookings still derive their number from the raw count.
func (s *Service) SetLessonNumber(ctx context.Context, bookingID string, number int) (*api.BookingResponse, error) {
	const op = "service.SetLessonNumber"

	if number < 1 || number > s.cfg.Cycle {
		return nil, fmt.Errorf("%s: %w", op, response.ErrBadRequest)
	}

	if err := s.store.SetLessonNumber(ctx, bookingID, number); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookingResponse(booking), nil
}

// #### achievements ####

// AssignAchievement sets or clears the label on one booking. A
// recognized label also flips the owner's milestone flag to true.
// Flags never reset: clearing the label later leaves the flag set.
func (s *Service) AssignAchievement(ctx context.Context, bookingID string, label string) (*api.BookingResponse, error) {
	const op = "service.AssignAchievement"

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if label == "" {
		if err := s.store.SetBookingAchievement(ctx, bookingID, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		booking.Achievement = nil
		return bookingResponse(booking), nil
	}

	if !models.IsAchievement(label) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrBadRequest)
	}

	if err := s.store.SetBookingAchievement(ctx, bookingID, &label); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.SetAchievementFlag(ctx, booking.Username, label); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	booking.Achievement = &label
	return bookingResponse(booking), nil
}

// #### recovery credits ####

// SetRecoveryCount is an absolute overwrite. The count is advisory and
// never gates booking creation.
func (s *Service) SetRecoveryCount(ctx context.Context, username string, count int) error {
	const op = "service.SetRecoveryCount"

	if count < 0 {
		return fmt.Errorf("%s: %w", op, response.ErrBadRequest)
	}

	if err := s.store.SetRecoveryLessons(ctx, username, count); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### notifications ####

func (s *Service) ListNotifications(ctx context.Context, username string) ([]*api.NotificationResponse, error) {
	const op = "service.ListNotifications"

	notifications, err := s.notifier.List(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		result = append(result, &api.NotificationResponse{
			ID:        n.ID,
			Heading:   n.Heading,
			Message:   n.Message,
			CreatedAt: n.CreatedAt,
		})
	}

	return result, nil
}

func (s *Service) validSlot(slot string) bool {
	for _, known := range s.cfg.Slots {
		if slot == known {
			return true
		}
	}

	return false
}

func bookingResponse(booking *models.Booking) *api.BookingResponse {
	return &api.BookingResponse{
		ID:           booking.ID,
		Username:     booking.Username,
		Date:         booking.BookingDate.Format(dateLayout),
		Slot:         booking.Slot,
		LessonNumber: booking.LessonNumber,
		Achievement:  booking.Achievement,
	}
}

func bookingResponses(bookings []*models.Booking) []*api.BookingResponse {
	result := make([]*api.BookingResponse, 0, len(bookings))
	for _, booking := range bookings {
		result = append(result, bookingResponse(booking))
	}

	return result
}
