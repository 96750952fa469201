package models

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

type User struct {
	Username        string          `db:"username"`
	PasswordHash    string          `db:"password_hash"`
	Role            Role            `db:"role"`
	RecoveryLessons int             `db:"recovery_lessons"`
	Achievements    map[string]bool `db:"-"`
}

type Booking struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	BookingDate  time.Time `db:"booking_date"`
	Slot         string    `db:"slot"`
	LessonNumber int       `db:"lesson_number"`
	Achievement  *string   `db:"achievement"`
	CreatedAt    time.Time `db:"created_at"`
}

type Notification struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	Heading   string    `db:"heading"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// Achievements maps the catalog label carried on a booking to the
// boolean column it mirrors on the users table. Flags only ever go
// from false to true; clearing a booking's label leaves them set.
var Achievements = map[string]string{
	"rosette":             "ach_rosette",
	"bridge":              "ach_bridge",
	"assembly":            "ach_assembly",
	"neck":                "ach_neck",
	"body":                "ach_body",
	"finished_instrument": "ach_finished_instrument",
}

func IsAchievement(label string) bool {
	_, ok := Achievements[label]
	return ok
}
