package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"campus/internal/session"
)

// ReconcileResult describes a finished reconciliation.
type ReconcileResult struct {
	SubjectID   int64
	Date        string
	Enrolled    int
	Present     int
	Absent      int
	Marked      []Record
	NothingToDo bool
}

// Message is the informational text shown to the teacher.
func (r ReconcileResult) Message() string {
	if r.NothingToDo {
		return fmt.Sprintf("nothing to mark: all %d enrolled students already have a record for %s", r.Enrolled, r.Date)
	}
	return fmt.Sprintf("marked %d students absent for %s", len(r.Marked), r.Date)
}

// Reconciler turns "no record yet" into explicit ABSENT records.
type Reconciler struct {
	remote ReconcileBackend
	now    Clock
	loc    *time.Location
}

func NewReconciler(remote ReconcileBackend, now Clock, loc *time.Location) *Reconciler {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{remote: remote, now: now, loc: loc}
}

// Reconcile marks every enrolled student without a record on date as absent.
// An empty date means today. The enrollment and record reads run concurrently
// and both must succeed before the difference is computed. The absences are
// written in one batch; if it fails the returned *BatchError lists every id.
func (r *Reconciler) Reconcile(ctx context.Context, sess session.Session, subjectID int64, date string) (ReconcileResult, error) {
	if _, err := sess.RequireTeacher(); err != nil {
		return ReconcileResult{}, err
	}
	if date == "" {
		date = Day(r.now(), r.loc)
	}
	if !ValidDate(date) {
		return ReconcileResult{}, fmt.Errorf("invalid date %q", date)
	}

	var (
		enrollments []Enrollment
		records     []Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if enrollments, err = r.remote.Enrollments(gctx, subjectID); err != nil {
			return fmt.Errorf("fetch enrollments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if records, err = r.remote.RecordsBySubjectDate(gctx, subjectID, date); err != nil {
			return fmt.Errorf("fetch attendance for %s: %w", date, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return ReconcileResult{}, err
	}

	enrolled := make([]int64, 0, len(enrollments))
	for _, e := range enrollments {
		enrolled = append(enrolled, e.Student)
	}
	var present, absent []int64
	for _, rec := range records {
		switch rec.Status {
		case StatusPresent:
			present = append(present, rec.Student)
		case StatusAbsent:
			absent = append(absent, rec.Student)
		}
	}

	res := ReconcileResult{
		SubjectID: subjectID,
		Date:      date,
		Enrolled:  len(uniq(enrolled)),
		Present:   len(uniq(present)),
		Absent:    len(uniq(absent)),
	}
	// LEAVE records also count as "already has a record today".
	toMark := ToMark(enrolled, present, absent, studentsWith(records, StatusLeave))
	if len(toMark) == 0 {
		res.NothingToDo = true
		return res, nil
	}

	batch := make([]NewRecord, len(toMark))
	for i, id := range toMark {
		batch[i] = NewRecord{StudentID: id, SubjectID: subjectID, Status: StatusAbsent, Date: date}
	}
	marked, err := r.remote.CreateRecords(ctx, batch)
	if err != nil {
		return res, &BatchError{SubjectID: subjectID, Date: date, StudentIDs: toMark, Err: err}
	}
	res.Marked = marked
	return res, nil
}

// ToMark returns enrolled minus every exclude set, deduplicated and sorted.
func ToMark(enrolled []int64, exclude ...[]int64) []int64 {
	skip := make(map[int64]struct{})
	for _, set := range exclude {
		for _, id := range set {
			skip[id] = struct{}{}
		}
	}
	out := make([]int64, 0, len(enrolled))
	for _, id := range uniq(enrolled) {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func studentsWith(records []Record, st Status) []int64 {
	var ids []int64
	for _, r := range records {
		if r.Status == st {
			ids = append(ids, r.Student)
		}
	}
	return ids
}

func uniq(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
