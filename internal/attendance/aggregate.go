package attendance

import "sort"

// Percentage is 100 × present / total over the given records, 0 for none.
func Percentage(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	present := 0
	for _, r := range records {
		if r.Status == StatusPresent {
			present++
		}
	}
	return 100 * float64(present) / float64(len(records))
}

// PercentageBySubject groups records by subject and applies Percentage to each group.
func PercentageBySubject(records []Record) map[int64]float64 {
	groups := make(map[int64][]Record)
	for _, r := range records {
		groups[r.Subject] = append(groups[r.Subject], r)
	}
	out := make(map[int64]float64, len(groups))
	for id, recs := range groups {
		out[id] = Percentage(recs)
	}
	return out
}

// FilterRange keeps records whose date falls in [from, to]. Empty bounds are open.
// Dates compare lexically, which is chronological for YYYY-MM-DD.
func FilterRange(records []Record, from, to string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if from != "" && r.Date < from {
			continue
		}
		if to != "" && r.Date > to {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SubjectSummary is the teacher's per-subject overview.
//
// ClassPercentage is present records over all existing records of the subject,
// a density of PRESENT rows. It is not the attendance rate over the enrolled
// population; use AttendanceRate for that.
type SubjectSummary struct {
	SubjectID       int64   `json:"subjectId"`
	PresentToday    int     `json:"presentToday"`
	UniqueStudents  int     `json:"uniqueStudents"`
	LatestDate      string  `json:"latestDate"`
	TotalRecords    int     `json:"totalRecords"`
	ClassPercentage float64 `json:"classPercentage"`
}

// SummarizeSubjects builds one summary per subject present in records, ordered by subject id.
// UniqueStudents counts distinct students with at least one PRESENT record.
func SummarizeSubjects(records []Record, today string) []SubjectSummary {
	type acc struct {
		sum      SubjectSummary
		present  int
		students map[int64]struct{}
	}
	bySubject := make(map[int64]*acc)
	for _, r := range records {
		a, ok := bySubject[r.Subject]
		if !ok {
			a = &acc{sum: SubjectSummary{SubjectID: r.Subject}, students: make(map[int64]struct{})}
			bySubject[r.Subject] = a
		}
		a.sum.TotalRecords++
		if r.Date > a.sum.LatestDate {
			a.sum.LatestDate = r.Date
		}
		if r.Status != StatusPresent {
			continue
		}
		a.present++
		a.students[r.Student] = struct{}{}
		if r.Date == today {
			a.sum.PresentToday++
		}
	}

	out := make([]SubjectSummary, 0, len(bySubject))
	for _, a := range bySubject {
		a.sum.UniqueStudents = len(a.students)
		a.sum.ClassPercentage = 100 * float64(a.present) / float64(a.sum.TotalRecords)
		out = append(out, a.sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// AttendanceRate is present records over enrolled × held sessions, where a
// session is a distinct date that has at least one record. Missing rows count
// as not attended, unlike Percentage.
func AttendanceRate(records []Record, enrolled int) float64 {
	if enrolled <= 0 {
		return 0
	}
	days := make(map[string]struct{})
	type studentDay struct {
		student int64
		date    string
	}
	present := make(map[studentDay]struct{})
	for _, r := range records {
		days[r.Date] = struct{}{}
		if r.Status == StatusPresent {
			present[studentDay{r.Student, r.Date}] = struct{}{}
		}
	}
	if len(days) == 0 {
		return 0
	}
	return 100 * float64(len(present)) / float64(enrolled*len(days))
}
