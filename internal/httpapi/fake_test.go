package httpapi

import (
	"context"
	"sync"
	"time"

	"campus/internal/attendance"
)

type refreshEntry struct {
	userID  int64
	expires time.Time
	revoked bool
}

// fakeStore is an in-memory Store with the same uniqueness rules as Postgres.
type fakeStore struct {
	mu sync.Mutex

	accounts    map[int64]attendance.Account
	subjects    map[int64]attendance.Subject
	enrollments []attendance.Enrollment
	records     []attendance.Record
	refresh     map[string]*refreshEntry
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[int64]attendance.Account{},
		subjects: map[int64]attendance.Subject{},
		refresh:  map[string]*refreshEntry{},
	}
}

func (f *fakeStore) GetAccount(ctx context.Context, id int64) (attendance.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return attendance.Account{}, attendance.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[token] = &refreshEntry{userID: userID, expires: expiresAt}
	return nil
}

func (f *fakeStore) ConsumeRefreshToken(ctx context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.refresh[token]
	if !ok || e.revoked || time.Now().After(e.expires) {
		return 0, attendance.ErrNotFound
	}
	e.revoked = true
	return e.userID, nil
}

func (f *fakeStore) GetSubject(ctx context.Context, id int64) (attendance.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subjects[id]
	if !ok {
		return attendance.Subject{}, attendance.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) SubjectsForTeacher(ctx context.Context, teacherID int64) ([]attendance.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []attendance.Subject{}
	for _, s := range f.subjects {
		if s.Teacher == teacherID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) SubjectsForStudent(ctx context.Context, studentID int64) ([]attendance.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []attendance.Subject{}
	for _, e := range f.enrollments {
		if e.Student == studentID {
			out = append(out, f.subjects[e.Subject])
		}
	}
	return out, nil
}

func (f *fakeStore) IsEnrolled(ctx context.Context, studentID, subjectID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.Student == studentID && e.Subject == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Enrollments(ctx context.Context, subjectID int64) ([]attendance.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []attendance.Enrollment{}
	for _, e := range f.enrollments {
		if e.Subject == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) exists(rec attendance.NewRecord) bool {
	for _, r := range f.records {
		if r.Student == rec.StudentID && r.Subject == rec.SubjectID && r.Date == rec.Date {
			return true
		}
	}
	return false
}

func (f *fakeStore) add(rec attendance.NewRecord) attendance.Record {
	f.nextID++
	r := attendance.Record{ID: f.nextID, Student: rec.StudentID, Subject: rec.SubjectID, Date: rec.Date, Status: rec.Status}
	f.records = append(f.records, r)
	return r
}

func (f *fakeStore) InsertRecord(ctx context.Context, rec attendance.NewRecord) (attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exists(rec) {
		return attendance.Record{}, attendance.ErrAlreadyMarked
	}
	return f.add(rec), nil
}

func (f *fakeStore) CreateRecords(ctx context.Context, recs []attendance.NewRecord) ([]attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range recs {
		if f.exists(rec) {
			return nil, attendance.ErrConflict
		}
	}
	out := make([]attendance.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, f.add(rec))
	}
	return out, nil
}

func (f *fakeStore) filter(keep func(attendance.Record) bool) []attendance.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []attendance.Record{}
	for _, r := range f.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStore) RecordsBySubjectDate(ctx context.Context, subjectID int64, date string) ([]attendance.Record, error) {
	return f.filter(func(r attendance.Record) bool { return r.Subject == subjectID && r.Date == date }), nil
}

func (f *fakeStore) RecordsBySubject(ctx context.Context, subjectID int64) ([]attendance.Record, error) {
	return f.filter(func(r attendance.Record) bool { return r.Subject == subjectID }), nil
}

func (f *fakeStore) RecordsByStudent(ctx context.Context, studentID int64) ([]attendance.Record, error) {
	return f.filter(func(r attendance.Record) bool { return r.Student == studentID }), nil
}

func (f *fakeStore) RecordsBySubjectStudent(ctx context.Context, subjectID, studentID int64) ([]attendance.Record, error) {
	return f.filter(func(r attendance.Record) bool { return r.Subject == subjectID && r.Student == studentID }), nil
}
