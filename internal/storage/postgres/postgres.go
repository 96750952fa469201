package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scuola-service/internal/models"
	"scuola-service/pkg/response"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// #### users ####

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.CreateUser"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3)`,
		user.Username,
		user.PasswordHash,
		string(user.Role),
	)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23505" {
			return fmt.Errorf("%s: %w", op, response.ErrAccountExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) GetUser(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.postgres.GetUser"

	user := models.User{
		Username:     username,
		Achievements: make(map[string]bool, len(models.Achievements)),
	}

	var rosette, bridge, assembly, neck, body, finished bool

	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash, role, recovery_lessons,
			ach_rosette, ach_bridge, ach_assembly, ach_neck, ach_body, ach_finished_instrument
		FROM users WHERE username=$1`, username).
		Scan(
			&user.PasswordHash,
			&user.Role,
			&user.RecoveryLessons,
			&rosette,
			&bridge,
			&assembly,
			&neck,
			&body,
			&finished,
		)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.Achievements["rosette"] = rosette
	user.Achievements["bridge"] = bridge
	user.Achievements["assembly"] = assembly
	user.Achievements["neck"] = neck
	user.Achievements["body"] = body
	user.Achievements["finished_instrument"] = finished

	return &user, nil
}

func (s *Storage) ListStudents(ctx context.Context) ([]*models.User, error) {
	const op = "storage.postgres.ListStudents"

	rows, err := s.db.QueryContext(ctx,
		`SELECT username, role, recovery_lessons,
			ach_rosette, ach_bridge, ach_assembly, ach_neck, ach_body, ach_finished_instrument
		FROM users WHERE role=$1 ORDER BY username`, string(models.RoleStudent))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var users []*models.User

	for rows.Next() {
		user := models.User{
			Achievements: make(map[string]bool, len(models.Achievements)),
		}

		var rosette, bridge, assembly, neck, body, finished bool

		err := rows.Scan(
			&user.Username,
			&user.Role,
			&user.RecoveryLessons,
			&rosette,
			&bridge,
			&assembly,
			&neck,
			&body,
			&finished,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		user.Achievements["rosette"] = rosette
		user.Achievements["bridge"] = bridge
		user.Achievements["assembly"] = assembly
		user.Achievements["neck"] = neck
		user.Achievements["body"] = body
		user.Achievements["finished_instrument"] = finished

		users = append(users, &user)
	}

	return users, nil
}

func (s *Storage) ListUsernames(ctx context.Context, role models.Role) ([]string, error) {
	const op = "storage.postgres.ListUsernames"

	rows, err := s.db.QueryContext(ctx, `SELECT username FROM users WHERE role=$1`, string(role))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var usernames []string

	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		usernames = append(usernames, username)
	}

	return usernames, nil
}

func (s *Storage) SetRecoveryLessons(ctx context.Context, username string, count int) error {
	const op = "storage.postgres.SetRecoveryLessons"

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET recovery_lessons=$1 WHERE username=$2`, count, username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// SetAchievementFlag flips one milestone column to true. The column name
// comes from the fixed models.Achievements catalog, never from request
// input. Flags are never reset here.
func (s *Storage) SetAchievementFlag(ctx context.Context, username string, label string) error {
	const op = "storage.postgres.SetAchievementFlag"

	column, ok := models.Achievements[label]
	if !ok {
		return fmt.Errorf("%s: %w", op, response.ErrBadRequest)
	}

	query := fmt.Sprintf(`UPDATE users SET %s=TRUE WHERE username=$1`, column)

	res, err := s.db.ExecContext(ctx, query, username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### bookings ####

// CreateBooking inserts the booking in a single statement that derives
// the lesson number from the user's total row count at insert time. The
// UNIQUE (username, booking_date, slot) constraint is the real guard
// against double booking; 23505 surfaces as ErrDuplicateBooking.
func (s *Storage) CreateBooking(ctx context.Context, booking *models.Booking, cycle int) (int, error) {
	const op = "storage.postgres.CreateBooking"

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO bookings (id, username, booking_date, slot, lesson_number)
		VALUES ($1, $2, $3, $4,
			(SELECT COUNT(*) FROM bookings WHERE username=$2) % $5 + 1)
		RETURNING lesson_number`,
		booking.ID,
		booking.Username,
		booking.BookingDate.Format("2006-01-02"),
		booking.Slot,
		cycle,
	).Scan(&booking.LessonNumber)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23505" {
			return 0, fmt.Errorf("%s: %w", op, response.ErrDuplicateBooking)
		}
		if ok && sqlErr.Code == "23503" {
			return 0, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return booking.LessonNumber, nil
}

func (s *Storage) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	const op = "storage.postgres.GetBooking"

	var booking models.Booking

	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, booking_date, slot, lesson_number, achievement, created_at
		FROM bookings WHERE id=$1`, id).
		Scan(
			&booking.ID,
			&booking.Username,
			&booking.BookingDate,
			&booking.Slot,
			&booking.LessonNumber,
			&booking.Achievement,
			&booking.CreatedAt,
		)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &booking, nil
}

func (s *Storage) CountBookings(ctx context.Context, username string) (int, error) {
	const op = "storage.postgres.CountBookings"

	var count int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE username=$1`, username).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

func (s *Storage) ListFutureBookings(ctx context.Context, username string) ([]*models.Booking, error) {
	const op = "storage.postgres.ListFutureBookings"

	bookings, err := s.listBookings(ctx,
		`SELECT id, username, booking_date, slot, lesson_number, achievement, created_at
		FROM bookings WHERE username=$1 AND booking_date >= CURRENT_DATE
		ORDER BY booking_date ASC, slot ASC`, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}

func (s *Storage) ListPastBookings(ctx context.Context, username string) ([]*models.Booking, error) {
	const op = "storage.postgres.ListPastBookings"

	bookings, err := s.listBookings(ctx,
		`SELECT id, username, booking_date, slot, lesson_number, achievement, created_at
		FROM bookings WHERE username=$1 AND booking_date < CURRENT_DATE
		ORDER BY booking_date DESC, slot DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}

func (s *Storage) ListAllBookings(ctx context.Context) ([]*models.Booking, error) {
	const op = "storage.postgres.ListAllBookings"

	bookings, err := s.listBookings(ctx,
		`SELECT id, username, booking_date, slot, lesson_number, achievement, created_at
		FROM bookings ORDER BY booking_date DESC, slot DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}

func (s *Storage) listBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var bookings []*models.Booking

	for rows.Next() {
		var booking models.Booking

		err := rows.Scan(
			&booking.ID,
			&booking.Username,
			&booking.BookingDate,
			&booking.Slot,
			&booking.LessonNumber,
			&booking.Achievement,
			&booking.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		bookings = append(bookings, &booking)
	}

	return bookings, rows.Err()
}

func (s *Storage) DeleteBooking(ctx context.Context, id string) error {
	const op = "storage.postgres.DeleteBooking"

	res, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) SetLessonNumber(ctx context.Context, id string, number int) error {
	const op = "storage.postgres.SetLessonNumber"

	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET lesson_number=$1 WHERE id=$2`, number, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) SetBookingAchievement(ctx context.Context, id string, label *string) error {
	const op = "storage.postgres.SetBookingAchievement"

	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET achievement=$1 WHERE id=$2`, label, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### notifications ####

func (s *Storage) InsertNotifications(ctx context.Context, notifications []*models.Notification) error {
	const op = "storage.postgres.InsertNotifications"

	if len(notifications) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (id, username, heading, message) VALUES ($1, $2, $3, $4)`,
			n.ID,
			n.Username,
			n.Heading,
			n.Message,
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) error {
	const op = "storage.postgres.DeleteNotificationsBefore"

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ListNotifications(ctx context.Context, username string) ([]*models.Notification, error) {
	const op = "storage.postgres.ListNotifications"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, heading, message, created_at
		FROM notifications WHERE username=$1 ORDER BY created_at DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var notifications []*models.Notification

	for rows.Next() {
		var n models.Notification

		err := rows.Scan(&n.ID, &n.Username, &n.Heading, &n.Message, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}
