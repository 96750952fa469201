package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"scuola-service/api"
	"scuola-service/internal/auth"
	"scuola-service/internal/models"
	"scuola-service/pkg/response"
)

// fakeStore mirrors the storage contract in memory, including the
// uniqueness guard and count-derived lesson number of the SQL layer.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	bookings []*models.Booking
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*models.User)}
}

func (f *fakeStore) CreateUser(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Username]; ok {
		return response.ErrAccountExists
	}
	u := *user
	if u.Achievements == nil {
		u.Achievements = make(map[string]bool)
	}
	f.users[user.Username] = &u
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, response.ErrNotFound
	}
	cp := *u
	cp.Achievements = make(map[string]bool, len(u.Achievements))
	for k, v := range u.Achievements {
		cp.Achievements[k] = v
	}
	return &cp, nil
}

func (f *fakeStore) ListStudents(_ context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, u := range f.users {
		if u.Role == models.RoleStudent {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) SetRecoveryLessons(_ context.Context, username string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return response.ErrNotFound
	}
	u.RecoveryLessons = count
	return nil
}

func (f *fakeStore) SetAchievementFlag(_ context.Context, username string, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return response.ErrNotFound
	}
	u.Achievements[label] = true
	return nil
}

func (f *fakeStore) CreateBooking(_ context.Context, booking *models.Booking, cycle int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, b := range f.bookings {
		if b.Username == booking.Username {
			if b.BookingDate.Equal(booking.BookingDate) && b.Slot == booking.Slot {
				return 0, response.ErrDuplicateBooking
			}
			count++
		}
	}
	f.nextID++
	booking.ID = fmt.Sprintf("b-%d", f.nextID)
	booking.LessonNumber = count%cycle + 1
	cp := *booking
	f.bookings = append(f.bookings, &cp)
	return booking.LessonNumber, nil
}

func (f *fakeStore) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) CountBookings(_ context.Context, username string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, b := range f.bookings {
		if b.Username == username {
			count++
		}
	}
	return count, nil
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (f *fakeStore) ListFutureBookings(_ context.Context, username string) ([]*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.Username == username && !b.BookingDate.Before(today()) {
			cp := *b
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].BookingDate.Before(out[i].BookingDate) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListPastBookings(_ context.Context, username string) ([]*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.Username == username && b.BookingDate.Before(today()) {
			cp := *b
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].BookingDate.After(out[i].BookingDate) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListAllBookings(_ context.Context) ([]*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Booking, 0, len(f.bookings))
	for _, b := range f.bookings {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) DeleteBooking(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.bookings {
		if b.ID == id {
			f.bookings = append(f.bookings[:i], f.bookings[i+1:]...)
			return nil
		}
	}
	return response.ErrNotFound
}

func (f *fakeStore) SetLessonNumber(_ context.Context, id string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.ID == id {
			b.LessonNumber = number
			return nil
		}
	}
	return response.ErrNotFound
}

func (f *fakeStore) SetBookingAchievement(_ context.Context, id string, label *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.ID == id {
			b.Achievement = label
			return nil
		}
	}
	return response.ErrNotFound
}

type fakeLocker struct {
	mu     sync.Mutex
	locked map[string]bool
	deny   bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locked: make(map[string]bool)}
}

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deny || l.locked[key] {
		return false, nil
	}
	l.locked[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, key)
	return nil
}

type sentNotification struct {
	heading   string
	message   string
	usernames []string
	role      models.Role
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(heading, message string, usernames ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{heading: heading, message: message, usernames: usernames})
}

func (n *fakeNotifier) NotifyRole(role models.Role, heading, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{heading: heading, message: message, role: role})
}

func (n *fakeNotifier) List(_ context.Context, _ string) ([]*models.Notification, error) {
	return nil, nil
}

func (n *fakeNotifier) sentTo(username string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		for _, u := range s.usernames {
			if u == username {
				out = append(out, s)
			}
		}
	}
	return out
}

const (
	slotMorning   = "10:00 - 13:00"
	slotAfternoon = "15:00 - 18:00"
)

func newTestService(store *fakeStore, locker *fakeLocker, notifier *fakeNotifier) *Service {
	return NewService(store, locker, notifier, Config{
		ClosedDays: map[time.Weekday]struct{}{
			time.Monday: {},
			time.Sunday: {},
		},
		Slots:     []string{slotMorning, slotAfternoon},
		Cycle:     8,
		AdminKey:  "open-sesame",
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	})
}

func mustRegister(t *testing.T, s *Service, username string) {
	t.Helper()
	if err := s.Register(context.Background(), &api.RegisterRequest{Username: username, Password: "pw"}); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
}

// openDates yields consecutive bookable dates starting after the given
// day, skipping Monday and Sunday.
func openDates(from time.Time, n int) []string {
	var out []string
	d := from
	for len(out) < n {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() == time.Monday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}

func TestPlaceBooking_CycleNumbering(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, newFakeLocker(), &fakeNotifier{})
	ctx := context.Background()
	mustRegister(t, s, "anna")

	dates := openDates(today(), 9)
	for i, date := range dates {
		booking, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotMorning})
		if err != nil {
			t.Fatalf("booking %d: %v", i+1, err)
		}
		want := i%8 + 1
		if booking.LessonNumber != want {
			t.Fatalf("booking %d: lesson number = %d, want %d", i+1, booking.LessonNumber, want)
		}
	}

	// 9th booking restarted the cycle
	next, err := s.NextLessonNumber(ctx, "anna")
	if err != nil {
		t.Fatalf("next lesson number: %v", err)
	}
	if next != 2 {
		t.Fatalf("next lesson number after 9 bookings = %d, want 2", next)
	}
}

func TestPlaceBooking_Duplicate(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, newFakeLocker(), &fakeNotifier{})
	ctx := context.Background()
	mustRegister(t, s, "anna")

	date := openDates(today(), 1)[0]

	first, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotMorning})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if first.LessonNumber != 1 {
		t.Fatalf("first lesson number = %d, want 1", first.LessonNumber)
	}

	_, err = s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotMorning})
	if !errors.Is(err, response.ErrDuplicateBooking) {
		t.Fatalf("second booking err = %v, want ErrDuplicateBooking", err)
	}

	count, _ := store.CountBookings(ctx, "anna")
	if count != 1 {
		t.Fatalf("bookings stored = %d, want 1", count)
	}

	// Different date, same slot still works and continues the cycle.
	second, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: openDates(today().AddDate(0, 0, 7), 1)[0], Slot: slotMorning})
	if err != nil {
		t.Fatalf("third booking: %v", err)
	}
	if second.LessonNumber != 2 {
		t.Fatalf("lesson number = %d, want 2", second.LessonNumber)
	}
}

func TestPlaceBooking_ClosedDay(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestService(store, newFakeLocker(), notifier)
	ctx := context.Background()
	mustRegister(t, s, "anna")

	// Find the next Monday.
	d := today()
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}

	_, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: d.Format("2006-01-02"), Slot: slotMorning})
	if !errors.Is(err, response.ErrClosedDay) {
		t.Fatalf("err = %v, want ErrClosedDay", err)
	}

	// No row was written and nothing was notified.
	count, _ := store.CountBookings(ctx, "anna")
	if count != 0 {
		t.Fatalf("bookings stored = %d, want 0", count)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("notifications sent = %d, want 0", len(notifier.sent))
	}
}

func TestPlaceBooking_UnknownSlot(t *testing.T) {
	s := newTestService(newFakeStore(), newFakeLocker(), &fakeNotifier{})
	mustRegister(t, s, "anna")

	date := openDates(today(), 1)[0]
	_, err := s.PlaceBooking(context.Background(), "anna", &api.BookingRequest{Date: date, Slot: "12:00 - 14:00"})
	if !errors.Is(err, response.ErrInvalidSlot) {
		t.Fatalf("err = %v, want ErrInvalidSlot", err)
	}
}

func TestPlaceBooking_LockDenied(t *testing.T) {
	locker := newFakeLocker()
	locker.deny = true
	s := newTestService(newFakeStore(), locker, &fakeNotifier{})
	mustRegister(t, s, "anna")

	date := openDates(today(), 1)[0]
	_, err := s.PlaceBooking(context.Background(), "anna", &api.BookingRequest{Date: date, Slot: slotMorning})
	if !errors.Is(err, response.ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
}

func TestPlaceBooking_PackageCompleteNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestService(newFakeStore(), newFakeLocker(), notifier)
	ctx := context.Background()
	mustRegister(t, s, "anna")

	for _, date := range openDates(today(), 8) {
		if _, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotAfternoon}); err != nil {
			t.Fatalf("booking on %s: %v", date, err)
		}
	}

	got := notifier.sentTo("anna")
	if len(got) != 1 {
		t.Fatalf("notifications to anna = %d, want 1 (package complete)", len(got))
	}
	if got[0].heading != "Package complete" {
		t.Fatalf("heading = %q, want %q", got[0].heading, "Package complete")
	}
}

func TestCancelBooking_Ownership(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestService(store, newFakeLocker(), notifier)
	ctx := context.Background()
	mustRegister(t, s, "anna")
	mustRegister(t, s, "bruno")

	date := openDates(today(), 1)[0]
	booking, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotMorning})
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	bruno := &auth.Principal{Username: "bruno", Role: models.RoleStudent}
	if err := s.CancelBooking(ctx, bruno, booking.ID); !errors.Is(err, response.ErrForbidden) {
		t.Fatalf("cancel by other student err = %v, want ErrForbidden", err)
	}

	anna := &auth.Principal{Username: "anna", Role: models.RoleStudent}
	if err := s.CancelBooking(ctx, anna, booking.ID); err != nil {
		t.Fatalf("cancel by owner: %v", err)
	}
	if len(notifier.sentTo("anna")) != 0 {
		t.Fatalf("self cancellation must not notify")
	}

	// Admin cancellation notifies the owner.
	booking, err = s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotAfternoon})
	if err != nil {
		t.Fatalf("rebooking: %v", err)
	}
	admin := &auth.Principal{Username: "maestro", Role: models.RoleAdmin}
	if err := s.CancelBooking(ctx, admin, booking.ID); err != nil {
		t.Fatalf("cancel by admin: %v", err)
	}
	got := notifier.sentTo("anna")
	if len(got) != 1 || got[0].heading != "Booking cancelled" {
		t.Fatalf("admin cancellation notice missing, got %+v", got)
	}
}

func TestFuturePastPartition(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, newFakeLocker(), &fakeNotifier{})
	ctx := context.Background()
	mustRegister(t, s, "anna")

	// Seed past rows directly; PlaceBooking has no backdating path.
	for _, offset := range []int{-10, -3} {
		b := &models.Booking{Username: "anna", BookingDate: today().AddDate(0, 0, offset), Slot: slotMorning}
		if _, err := store.CreateBooking(ctx, b, 8); err != nil {
			t.Fatalf("seed past booking: %v", err)
		}
	}
	for _, date := range openDates(today(), 2) {
		if _, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotMorning}); err != nil {
			t.Fatalf("future booking: %v", err)
		}
	}

	future, err := s.ListFutureBookings(ctx, "anna")
	if err != nil {
		t.Fatalf("list future: %v", err)
	}
	past, err := s.ListPastBookings(ctx, "anna")
	if err != nil {
		t.Fatalf("list past: %v", err)
	}

	if len(future) != 2 || len(past) != 2 {
		t.Fatalf("partition sizes = %d future, %d past; want 2 and 2", len(future), len(past))
	}

	todayStr := today().Format("2006-01-02")
	for _, b := range future {
		if b.Date < todayStr {
			t.Fatalf("future list contains past date %s", b.Date)
		}
	}
	for _, b := range past {
		if b.Date >= todayStr {
			t.Fatalf("past list contains future date %s", b.Date)
		}
	}

	if future[0].Date > future[1].Date {
		t.Fatalf("future list not ascending: %s > %s", future[0].Date, future[1].Date)
	}
	if past[0].Date < past[1].Date {
		t.Fatalf("past list not descending: %s < %s", past[0].Date, past[1].Date)
	}
}

func TestSetLessonNumber_OverrideDoesNotCascade(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, newFakeLocker(), &fakeNotifier{})
	ctx := context.Background()
	mustRegister(t, s, "anna")

	dates := openDates(today(), 4)
	var ids []string
	for _, date := range dates[:3] {
		b, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotMorning})
		if err != nil {
			t.Fatalf("booking: %v", err)
		}
		ids = append(ids, b.ID)
	}

	overridden, err := s.SetLessonNumber(ctx, ids[1], 7)
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if overridden.LessonNumber != 7 {
		t.Fatalf("lesson number = %d, want 7", overridden.LessonNumber)
	}

	// The next booking still derives from the raw count, not the override.
	next, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: dates[3], Slot: slotMorning})
	if err != nil {
		t.Fatalf("booking after override: %v", err)
	}
	if next.LessonNumber != 4 {
		t.Fatalf("lesson number after override = %d, want 4", next.LessonNumber)
	}

	if _, err := s.SetLessonNumber(ctx, ids[0], 0); !errors.Is(err, response.ErrBadRequest) {
		t.Fatalf("out of range override err = %v, want ErrBadRequest", err)
	}
	if _, err := s.SetLessonNumber(ctx, ids[0], 9); !errors.Is(err, response.ErrBadRequest) {
		t.Fatalf("out of range override err = %v, want ErrBadRequest", err)
	}
}

func TestAssignAchievement_MonotonicFlags(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, newFakeLocker(), &fakeNotifier{})
	ctx := context.Background()
	mustRegister(t, s, "anna")

	date := openDates(today(), 1)[0]
	booking, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotMorning})
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	got, err := s.AssignAchievement(ctx, booking.ID, "rosette")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.Achievement == nil || *got.Achievement != "rosette" {
		t.Fatalf("achievement = %v, want rosette", got.Achievement)
	}

	profile, err := s.GetStudent(ctx, "anna")
	if err != nil {
		t.Fatalf("get student: %v", err)
	}
	if !profile.Achievements["rosette"] {
		t.Fatalf("rosette flag not set on profile")
	}

	// Clearing the label leaves the flag set (permanent unlock).
	got, err = s.AssignAchievement(ctx, booking.ID, "")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got.Achievement != nil {
		t.Fatalf("achievement = %v, want cleared", got.Achievement)
	}

	profile, err = s.GetStudent(ctx, "anna")
	if err != nil {
		t.Fatalf("get student: %v", err)
	}
	if !profile.Achievements["rosette"] {
		t.Fatalf("rosette flag reset after clearing label; flags must be monotonic")
	}

	if _, err := s.AssignAchievement(ctx, booking.ID, "varnish"); !errors.Is(err, response.ErrBadRequest) {
		t.Fatalf("unknown label err = %v, want ErrBadRequest", err)
	}
}

func TestSetRecoveryCount(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, newFakeLocker(), &fakeNotifier{})
	ctx := context.Background()
	mustRegister(t, s, "anna")

	if err := s.SetRecoveryCount(ctx, "anna", 3); err != nil {
		t.Fatalf("set recovery: %v", err)
	}

	profile, err := s.GetStudent(ctx, "anna")
	if err != nil {
		t.Fatalf("get student: %v", err)
	}
	if profile.RecoveryLessons != 3 {
		t.Fatalf("recovery lessons = %d, want 3", profile.RecoveryLessons)
	}

	// Outstanding credits never gate booking creation.
	date := openDates(today(), 1)[0]
	if _, err := s.PlaceBooking(ctx, "anna", &api.BookingRequest{Date: date, Slot: slotMorning}); err != nil {
		t.Fatalf("booking with recovery credits: %v", err)
	}

	if err := s.SetRecoveryCount(ctx, "anna", -1); !errors.Is(err, response.ErrBadRequest) {
		t.Fatalf("negative count err = %v, want ErrBadRequest", err)
	}
	if err := s.SetRecoveryCount(ctx, "nobody", 1); !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("unknown user err = %v, want ErrNotFound", err)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestService(newFakeStore(), newFakeLocker(), &fakeNotifier{})
	ctx := context.Background()

	if err := s.Register(ctx, &api.RegisterRequest{Username: "anna", Password: "secret"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := s.Register(ctx, &api.RegisterRequest{Username: "anna", Password: "other"})
	if !errors.Is(err, response.ErrAccountExists) {
		t.Fatalf("duplicate register err = %v, want ErrAccountExists", err)
	}

	err = s.Register(ctx, &api.RegisterRequest{Username: "mallory", Password: "pw", AdminCode: "wrong"})
	if !errors.Is(err, response.ErrForbidden) {
		t.Fatalf("wrong admin code err = %v, want ErrForbidden", err)
	}

	if err := s.Register(ctx, &api.RegisterRequest{Username: "maestro", Password: "pw", AdminCode: "open-sesame"}); err != nil {
		t.Fatalf("admin register: %v", err)
	}

	result, err := s.Login(ctx, &api.LoginRequest{Username: "maestro", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Role != string(models.RoleAdmin) || result.Token == "" {
		t.Fatalf("unexpected login result: %+v", result)
	}

	if _, err := s.Login(ctx, &api.LoginRequest{Username: "anna", Password: "nope"}); !errors.Is(err, response.ErrInvalidCredentials) {
		t.Fatalf("bad password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := s.Login(ctx, &api.LoginRequest{Username: "ghost", Password: "pw"}); !errors.Is(err, response.ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}
