package attendance

import "context"

// TokenMinter asks the remote service for a new attendance token.
type TokenMinter interface {
	CreateToken(ctx context.Context, subjectID int64) (Token, error)
}

// SubmitBackend is what a student check-in needs from the remote service.
type SubmitBackend interface {
	RecordsBySubjectStudent(ctx context.Context, subjectID, studentID int64) ([]Record, error)
	CreateRecord(ctx context.Context, rec NewRecord) (Record, error)
}

// ReconcileBackend is what absence reconciliation needs. Both the REST client
// and the Postgres repository implement it.
type ReconcileBackend interface {
	Enrollments(ctx context.Context, subjectID int64) ([]Enrollment, error)
	RecordsBySubjectDate(ctx context.Context, subjectID int64, date string) ([]Record, error)
	CreateRecords(ctx context.Context, recs []NewRecord) ([]Record, error)
}

// RecordLister serves the read-side aggregation screens.
type RecordLister interface {
	RecordsBySubject(ctx context.Context, subjectID int64) ([]Record, error)
	RecordsByStudent(ctx context.Context, studentID int64) ([]Record, error)
	RecordsBySubjectStudent(ctx context.Context, subjectID, studentID int64) ([]Record, error)
}

// Remote is the full contract of the campus attendance service.
type Remote interface {
	TokenMinter
	SubmitBackend
	ReconcileBackend
	RecordLister
	Subjects(ctx context.Context) ([]Subject, error)
}
