package attendance

import (
	"context"
	"sync"
	"time"
)

// fakeRemote records every call so tests can assert on call counts and order.
type fakeRemote struct {
	mu sync.Mutex

	token    Token
	tokenErr error

	enrollments []Enrollment
	records     []Record
	enrollErr   error
	listErr     error
	createErr   error

	calls   []string
	created []NewRecord
	nextID  int64

	// gate, when set, blocks both reconcile reads until it is closed.
	gate chan struct{}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeRemote) CreateToken(ctx context.Context, subjectID int64) (Token, error) {
	f.record("CreateToken")
	if f.tokenErr != nil {
		return Token{}, f.tokenErr
	}
	return f.token, nil
}

func (f *fakeRemote) RecordsBySubjectStudent(ctx context.Context, subjectID, studentID int64) ([]Record, error) {
	f.record("RecordsBySubjectStudent")
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Record
	for _, r := range f.records {
		if r.Subject == subjectID && r.Student == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRemote) CreateRecord(ctx context.Context, rec NewRecord) (Record, error) {
	f.record("CreateRecord")
	if f.createErr != nil {
		return Record{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, rec)
	f.nextID++
	return Record{ID: f.nextID, Student: rec.StudentID, Subject: rec.SubjectID, Date: "2024-03-11", Status: rec.Status}, nil
}

func (f *fakeRemote) Enrollments(ctx context.Context, subjectID int64) ([]Enrollment, error) {
	f.record("Enrollments")
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.enrollErr != nil {
		return nil, f.enrollErr
	}
	return f.enrollments, nil
}

func (f *fakeRemote) RecordsBySubjectDate(ctx context.Context, subjectID int64, date string) ([]Record, error) {
	f.record("RecordsBySubjectDate")
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Record
	for _, r := range f.records {
		if r.Subject == subjectID && r.Date == date {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRemote) CreateRecords(ctx context.Context, recs []NewRecord) ([]Record, error) {
	f.record("CreateRecords")
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		f.created = append(f.created, rec)
		f.nextID++
		out = append(out, Record{ID: f.nextID, Student: rec.StudentID, Subject: rec.SubjectID, Date: rec.Date, Status: rec.Status})
	}
	return out, nil
}

func enroll(subject int64, students ...int64) []Enrollment {
	out := make([]Enrollment, len(students))
	for i, s := range students {
		out[i] = Enrollment{Student: s, Subject: subject}
	}
	return out
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
