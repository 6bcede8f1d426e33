package clinic

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicrecords/records/internal/platform/apperr"
	"github.com/clinicrecords/records/pkg/pagination"
)

// RecordFilter narrows medical records. Zero values mean "any". The date
// range is inclusive of both calendar days.
type RecordFilter struct {
	Status   RecordStatus
	DoctorID uuid.UUID
	From     *Date
	To       *Date
}

func (f RecordFilter) empty() bool {
	return f.Status == "" && f.DoctorID == uuid.Nil && f.From == nil && f.To == nil
}

func (f RecordFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return apperr.Validation("status must be one of ACTIVE, RESOLVED, FOLLOW_UP")
	}
	if f.From != nil && f.To != nil && f.To.Before(f.From.Time) {
		return apperr.Validation("from must not be after to")
	}
	return nil
}

// PatientQuery is the dashboard's list request: free-text search, paging,
// sorting and record-based filters.
type PatientQuery struct {
	Search string
	Page   pagination.Params
	Sort   string
	Order  string
	Gender Gender
	// Records keeps patients with at least one record matching every
	// condition of the filter.
	Records RecordFilter
}

var patientSortColumns = map[string]string{
	"name":        "lower(u.name)",
	"email":       "lower(u.email)",
	"gender":      "p.gender",
	"dateOfBirth": "p.date_of_birth",
	"createdAt":   "p.created_at",
}

func (q PatientQuery) Validate() error {
	if err := q.Page.Validate(); err != nil {
		return apperr.Validation("%s", strings.TrimPrefix(err.Error(), pagination.ErrInvalid.Error()+": "))
	}
	if q.Sort != "" {
		if _, ok := patientSortColumns[q.Sort]; !ok {
			return apperr.Validation("sort must be one of name, email, gender, dateOfBirth, createdAt")
		}
	}
	if q.Order != "" && q.Order != "asc" && q.Order != "desc" {
		return apperr.Validation("order must be asc or desc")
	}
	if q.Gender != "" && !q.Gender.Valid() {
		return apperr.Validation("gender must be one of MALE, FEMALE, OTHER")
	}
	return q.Records.Validate()
}

// sqlBuilder collects WHERE conditions and their positional arguments.
type sqlBuilder struct {
	conds []string
	args  []interface{}
}

func (b *sqlBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *sqlBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *sqlBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// recordConditions renders f against the medical_record alias.
func recordConditions(b *sqlBuilder, alias string, f RecordFilter) {
	if f.Status != "" {
		b.where(fmt.Sprintf("%s.status = %s", alias, b.arg(string(f.Status))))
	}
	if f.DoctorID != uuid.Nil {
		b.where(fmt.Sprintf("%s.doctor_id = %s", alias, b.arg(f.DoctorID)))
	}
	if f.From != nil {
		b.where(fmt.Sprintf("%s.created_at >= %s", alias, b.arg(f.From.Time)))
	}
	if f.To != nil {
		// Inclusive end day.
		b.where(fmt.Sprintf("%s.created_at < %s", alias, b.arg(f.To.Time.Add(24*time.Hour))))
	}
}

// buildPatientList returns the page query, the count query and their shared
// arguments. The page query appends LIMIT and OFFSET placeholders.
func buildPatientList(selectCols string, q PatientQuery) (listSQL, countSQL string, args []interface{}) {
	b := &sqlBuilder{}

	if s := strings.TrimSpace(q.Search); s != "" {
		p := b.arg("%" + escapeLike(s) + "%")
		b.where(fmt.Sprintf(`(u.name ILIKE %s ESCAPE '\' OR u.email ILIKE %s ESCAPE '\')`, p, p))
	}
	if q.Gender != "" {
		b.where("p.gender = " + b.arg(string(q.Gender)))
	}
	if !q.Records.empty() {
		sub := &sqlBuilder{args: b.args}
		sub.where("r.patient_id = p.user_id")
		recordConditions(sub, "r", q.Records)
		b.args = sub.args
		b.where("EXISTS (SELECT 1 FROM medical_record r" + sub.clause() + ")")
	}

	from := " FROM patient p JOIN app_user u ON u.id = p.user_id" + b.clause()
	countSQL = "SELECT count(*)" + from

	sortCol := patientSortColumns["name"]
	if col, ok := patientSortColumns[q.Sort]; ok {
		sortCol = col
	}
	dir := "ASC"
	if q.Order == "desc" {
		dir = "DESC"
	}

	n := len(b.args)
	listSQL = fmt.Sprintf("SELECT %s%s ORDER BY %s %s, p.user_id %s LIMIT $%d OFFSET $%d",
		selectCols, from, sortCol, dir, dir, n+1, n+2)
	return listSQL, countSQL, b.args
}
