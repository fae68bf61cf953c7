package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus/internal/session"
)

// Account is a user who can sign in.
type Account struct {
	ID           int64
	Name         string
	Role         session.Role
	PasswordHash string
}

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetAccount loads a user by id.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, role, password_hash FROM users WHERE id = $1`, id)
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, userID, token, expiresAt)
	return err
}

// ConsumeRefreshToken revokes a live refresh token and returns its owner.
// Unknown, revoked and expired tokens give ErrNotFound.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) (int64, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > NOW()
		RETURNING user_id
	`, token)
	var userID int64
	if err := row.Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return userID, nil
}

// GetSubject returns a single subject.
func (r *Repository) GetSubject(ctx context.Context, id int64) (Subject, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, code, teacher_id FROM subjects WHERE id = $1`, id)
	var s Subject
	if err := row.Scan(&s.ID, &s.Name, &s.Code, &s.Teacher); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, err
	}
	return s, nil
}

// SubjectsForTeacher lists the subjects a teacher runs.
func (r *Repository) SubjectsForTeacher(ctx context.Context, teacherID int64) ([]Subject, error) {
	return r.listSubjects(ctx, `
		SELECT id, name, code, teacher_id FROM subjects
		WHERE teacher_id = $1 ORDER BY code
	`, teacherID)
}

// SubjectsForStudent lists the subjects a student is enrolled in.
func (r *Repository) SubjectsForStudent(ctx context.Context, studentID int64) ([]Subject, error) {
	return r.listSubjects(ctx, `
		SELECT s.id, s.name, s.code, s.teacher_id FROM subjects s
		JOIN enrollments e ON e.subject_id = s.id
		WHERE e.student_id = $1 ORDER BY s.code
	`, studentID)
}

func (r *Repository) listSubjects(ctx context.Context, query string, args ...any) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Subject{}
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.Teacher); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Enrollments returns the membership of one subject.
func (r *Repository) Enrollments(ctx context.Context, subjectID int64) ([]Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, subject_id FROM enrollments
		WHERE subject_id = $1 ORDER BY student_id
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Enrollment{}
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.Student, &e.Subject); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// IsEnrolled reports whether a student belongs to a subject.
func (r *Repository) IsEnrolled(ctx context.Context, studentID, subjectID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND subject_id = $2)
	`, studentID, subjectID).Scan(&ok)
	return ok, err
}

const insertRecordSQL = `
	INSERT INTO attendance_records (student_id, subject_id, date, status)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (student_id, subject_id, date) DO NOTHING
	RETURNING id
`

// InsertRecord writes one record. rec.Date must be set. A record that already
// exists for the same student, subject and day gives ErrAlreadyMarked.
func (r *Repository) InsertRecord(ctx context.Context, rec NewRecord) (Record, error) {
	day, err := parseDay(rec.Date)
	if err != nil {
		return Record{}, err
	}
	var id int64
	err = r.db.QueryRowContext(ctx, insertRecordSQL, rec.StudentID, rec.SubjectID, day, string(rec.Status)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrAlreadyMarked
		}
		return Record{}, err
	}
	return Record{ID: id, Student: rec.StudentID, Subject: rec.SubjectID, Date: rec.Date, Status: rec.Status}, nil
}

// CreateRecords writes all records in one transaction; any conflict or error
// rolls back the whole batch.
func (r *Repository) CreateRecords(ctx context.Context, recs []NewRecord) ([]Record, error) {
	if len(recs) == 0 {
		return []Record{}, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		day, err := parseDay(rec.Date)
		if err != nil {
			return nil, err
		}
		var id int64
		err = tx.QueryRowContext(ctx, insertRecordSQL, rec.StudentID, rec.SubjectID, day, string(rec.Status)).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: student %d on %s", ErrConflict, rec.StudentID, rec.Date)
			}
			return nil, err
		}
		out = append(out, Record{ID: id, Student: rec.StudentID, Subject: rec.SubjectID, Date: rec.Date, Status: rec.Status})
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordsBySubjectDate returns the records of one subject on one day.
func (r *Repository) RecordsBySubjectDate(ctx context.Context, subjectID int64, date string) ([]Record, error) {
	day, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	return r.listRecords(ctx, []string{"subject_id = ", "date = "}, subjectID, day)
}

func (r *Repository) RecordsBySubject(ctx context.Context, subjectID int64) ([]Record, error) {
	return r.listRecords(ctx, []string{"subject_id = "}, subjectID)
}

func (r *Repository) RecordsByStudent(ctx context.Context, studentID int64) ([]Record, error) {
	return r.listRecords(ctx, []string{"student_id = "}, studentID)
}

func (r *Repository) RecordsBySubjectStudent(ctx context.Context, subjectID, studentID int64) ([]Record, error) {
	return r.listRecords(ctx, []string{"subject_id = ", "student_id = "}, subjectID, studentID)
}

// listRecords ANDs one placeholder per clause prefix, in args order.
func (r *Repository) listRecords(ctx context.Context, clauses []string, args ...any) ([]Record, error) {
	where := make([]string, len(clauses))
	for i, c := range clauses {
		where[i] = fmt.Sprintf("%s$%d", c, i+1)
	}
	query := `SELECT id, student_id, subject_id, date, status FROM attendance_records WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, student_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Record{}
	for rows.Next() {
		var (
			rec Record
			day time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Student, &rec.Subject, &day, &rec.Status); err != nil {
			return nil, err
		}
		rec.Date = day.Format(DateLayout)
		res = append(res, rec)
	}
	return res, rows.Err()
}

func parseDay(date string) (time.Time, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}
	return d, nil
}
