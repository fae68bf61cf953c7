package cli

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"campus/internal/attendance"
)

func (a *app) statsCmd() *cobra.Command {
	var (
		subjectID int64
		studentID int64
		from, to  string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Attendance percentages for a subject or a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range []string{from, to} {
				if d != "" && !attendance.ValidDate(d) {
					return fmt.Errorf("date %q must be YYYY-MM-DD", d)
				}
			}
			switch {
			case subjectID > 0 && studentID == 0:
				return a.subjectStats(cmd, subjectID, from, to)
			case studentID > 0 && subjectID == 0:
				return a.studentStats(cmd, studentID, from, to)
			}
			return errors.New("exactly one of --subject or --student is required")
		},
	}
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "subject id (teachers)")
	cmd.Flags().Int64Var(&studentID, "student", 0, "student id")
	cmd.Flags().StringVar(&from, "from", "", "first day, inclusive")
	cmd.Flags().StringVar(&to, "to", "", "last day, inclusive")
	return cmd
}

func (a *app) subjectStats(cmd *cobra.Command, subjectID int64, from, to string) error {
	ctx := cmd.Context()
	records, err := a.client.RecordsBySubject(ctx, subjectID)
	if err != nil {
		return err
	}
	enrolled, err := a.client.Enrollments(ctx, subjectID)
	if err != nil {
		return err
	}
	records = attendance.FilterRange(records, from, to)

	out := cmd.OutOrStdout()
	sums := attendance.SummarizeSubjects(records, a.today())
	if len(sums) == 0 {
		fmt.Fprintf(out, "subject %d: no records\n", subjectID)
		return nil
	}
	s := sums[0]
	fmt.Fprintf(out, "subject %d\n", subjectID)
	fmt.Fprintf(out, "  present today:     %d\n", s.PresentToday)
	fmt.Fprintf(out, "  students present:  %d of %d enrolled\n", s.UniqueStudents, len(enrolled))
	fmt.Fprintf(out, "  latest session:    %s\n", s.LatestDate)
	fmt.Fprintf(out, "  records:           %d\n", s.TotalRecords)
	fmt.Fprintf(out, "  present share:     %.1f%%\n", s.ClassPercentage)
	fmt.Fprintf(out, "  attendance rate:   %.1f%%\n", attendance.AttendanceRate(records, len(enrolled)))
	return nil
}

func (a *app) studentStats(cmd *cobra.Command, studentID int64, from, to string) error {
	records, err := a.client.RecordsByStudent(cmd.Context(), studentID)
	if err != nil {
		return err
	}
	records = attendance.FilterRange(records, from, to)

	bySubject := attendance.PercentageBySubject(records)
	ids := make([]int64, 0, len(bySubject))
	for id := range bySubject {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBJECT\tPRESENT")
	for _, id := range ids {
		fmt.Fprintf(w, "%d\t%.1f%%\n", id, bySubject[id])
	}
	fmt.Fprintf(w, "all\t%.1f%%\n", attendance.Percentage(records))
	return w.Flush()
}
