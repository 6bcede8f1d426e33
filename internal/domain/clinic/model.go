package clinic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool { return r == RoleDoctor || r == RolePatient }

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

type RecordStatus string

const (
	StatusActive   RecordStatus = "ACTIVE"
	StatusResolved RecordStatus = "RESOLVED"
	StatusFollowUp RecordStatus = "FOLLOW_UP"
)

func (s RecordStatus) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusFollowUp:
		return true
	}
	return false
}

type BloodType string

var bloodTypes = map[BloodType]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

func (b BloodType) Valid() bool { return bloodTypes[b] }

const dateLayout = "2006-01-02"

// Date is a calendar day. It serializes as "YYYY-MM-DD" and maps to a
// PostgreSQL DATE column.
type Date struct {
	time.Time
}

// ParseDate accepts "YYYY-MM-DD" or an RFC 3339 timestamp. Timestamps are
// reduced to the calendar day in the offset they were written with.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string")
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// User maps to the app_user table.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Doctor maps to the doctor table. User is populated by joined reads.
type Doctor struct {
	UserID         uuid.UUID `json:"userId"`
	Specialization string    `json:"specialization"`
	LicenseNumber  string    `json:"licenseNumber"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	User           *User     `json:"user,omitempty"`
}

// DoctorDetail is a doctor with every record they authored, each carrying
// its patient and the patient's user.
type DoctorDetail struct {
	Doctor
	Records []*MedicalRecord `json:"records"`
}

// Patient maps to the patient table. User is populated by joined reads.
type Patient struct {
	UserID            uuid.UUID  `json:"userId"`
	DateOfBirth       Date       `json:"dateOfBirth"`
	Gender            Gender     `json:"gender"`
	PhoneNumber       *string    `json:"phoneNumber,omitempty"`
	Address           *string    `json:"address,omitempty"`
	EmergencyContact  *string    `json:"emergencyContact,omitempty"`
	BloodType         *BloodType `json:"bloodType,omitempty"`
	Allergies         []string   `json:"allergies"`
	ChronicConditions []string   `json:"chronicConditions"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	User              *User      `json:"user,omitempty"`
}

// PatientDetail is a patient with their records, each carrying its doctor
// and the doctor's user.
type PatientDetail struct {
	Patient
	Records []*MedicalRecord `json:"records"`
}

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
	Notes     string `json:"notes,omitempty"`
}

type TestResult struct {
	Name   string `json:"name"`
	Result string `json:"result"`
	Date   Date   `json:"date"`
	Notes  string `json:"notes,omitempty"`
}

// MedicalRecord maps to the medical_record table.
type MedicalRecord struct {
	ID           uuid.UUID    `json:"id"`
	PatientID    uuid.UUID    `json:"patientId"`
	DoctorID     uuid.UUID    `json:"doctorId"`
	Description  string       `json:"description"`
	Diagnosis    string       `json:"diagnosis"`
	Treatment    string       `json:"treatment"`
	Status       RecordStatus `json:"status"`
	FollowUpDate *Date        `json:"followUpDate,omitempty"`
	Symptoms     []string     `json:"symptoms"`
	Medications  []Medication `json:"medications"`
	TestResults  []TestResult `json:"testResults"`
	Notes        *string      `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	Patient      *Patient     `json:"patient,omitempty"`
	Doctor       *Doctor      `json:"doctor,omitempty"`
}

// DashboardStats feeds the dashboard statistic cards.
type DashboardStats struct {
	TotalPatients int `json:"totalPatients"`
	TotalDoctors  int `json:"totalDoctors"`
	TotalRecords  int `json:"totalRecords"`
	ActiveRecords int `json:"activeRecords"`
	FollowUps     int `json:"followUps"`
}

// normalizeList trims entries, drops blanks and never returns nil.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
