package api

import "time"

type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AdminCode string `json:"admin_code,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

type BookingRequest struct {
	Date string `json:"date"`
	Slot string `json:"slot"`
}

type BookingResponse struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Date         string  `json:"date"`
	Slot         string  `json:"slot"`
	LessonNumber int     `json:"lesson_number"`
	Achievement  *string `json:"achievement,omitempty"`
}

type LessonNumberRequest struct {
	LessonNumber int `json:"lesson_number"`
}

type AchievementRequest struct {
	Achievement string `json:"achievement"`
}

type RecoveryRequest struct {
	RecoveryLessons int `json:"recovery_lessons"`
}

type StudentResponse struct {
	Username         string          `json:"username"`
	Role             string          `json:"role"`
	RecoveryLessons  int             `json:"recovery_lessons"`
	Achievements     map[string]bool `json:"achievements"`
	NextLessonNumber int             `json:"next_lesson_number"`
}

type NotificationResponse struct {
	ID        string    `json:"id"`
	Heading   string    `json:"heading"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
