// Package seed loads the demo clinic dataset: three doctors, eight patients
// and eight medical records with their historical creation dates.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicrecords/records/internal/domain/clinic"
	"github.com/clinicrecords/records/internal/platform/apperr"
)

// Registrar is the part of clinic.Service the seeder writes through.
type Registrar interface {
	RegisterDoctor(ctx context.Context, reg clinic.DoctorRegistration) (*clinic.User, *clinic.Doctor, error)
	RegisterPatient(ctx context.Context, reg clinic.PatientRegistration) (*clinic.User, *clinic.Patient, error)
	CreateMedicalRecord(ctx context.Context, in clinic.RecordInput) (*clinic.MedicalRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*clinic.User, error)
}

// Result summarizes a seed run.
type Result struct {
	Doctors  int  `json:"doctors"`
	Patients int  `json:"patients"`
	Records  int  `json:"records"`
	Skipped  bool `json:"skipped"`
}

type Seeder struct {
	svc    Registrar
	tx     clinic.TxRunner
	logger zerolog.Logger
}

// NewSeeder writes through svc inside one transaction run by tx, so a failed
// run leaves nothing behind.
func NewSeeder(svc Registrar, tx clinic.TxRunner, logger zerolog.Logger) *Seeder {
	return &Seeder{svc: svc, tx: tx, logger: logger}
}

// Run inserts the dataset. It does nothing when the first demo doctor
// already exists, so running it twice is harmless.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	if _, err := s.svc.GetUserByEmail(ctx, doctors[0].reg.Email); err == nil {
		s.logger.Info().Msg("demo data already present, skipping seed")
		return &Result{Skipped: true}, nil
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	var res *Result
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("doctors", res.Doctors).
		Int("patients", res.Patients).
		Int("records", res.Records).
		Msg("demo data seeded")
	return res, nil
}

func (s *Seeder) load(ctx context.Context) (*Result, error) {
	res := &Result{}
	ids := make(map[string]*clinic.User)

	for _, d := range doctors {
		u, _, err := s.svc.RegisterDoctor(ctx, d.reg)
		if err != nil {
			return nil, fmt.Errorf("seed doctor %s: %w", d.reg.Email, err)
		}
		ids[d.key] = u
		res.Doctors++
	}
	for _, p := range patients {
		u, _, err := s.svc.RegisterPatient(ctx, p.reg)
		if err != nil {
			return nil, fmt.Errorf("seed patient %s: %w", p.reg.Email, err)
		}
		ids[p.key] = u
		res.Patients++
	}
	for _, r := range records {
		in := r.in
		in.PatientID = ids[r.patient].ID
		in.DoctorID = ids[r.doctor].ID
		if _, err := s.svc.CreateMedicalRecord(ctx, in); err != nil {
			return nil, fmt.Errorf("seed record %s: %w", r.key, err)
		}
		res.Records++
	}
	return res, nil
}

type seedDoctor struct {
	key string
	reg clinic.DoctorRegistration
}

type seedPatient struct {
	key string
	reg clinic.PatientRegistration
}

type seedRecord struct {
	key             string
	patient, doctor string
	in              clinic.RecordInput
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func date(s string) clinic.Date {
	return clinic.DateOf(day(s))
}

func datePtr(s string) *clinic.Date {
	d := date(s)
	return &d
}

func str(s string) *string { return &s }

func blood(s string) *clinic.BloodType {
	b := clinic.BloodType(s)
	return &b
}

var doctors = []seedDoctor{
	{"d1", clinic.DoctorRegistration{
		Email: "dr.wilson@example.com", Name: "Dr. Elizabeth Wilson",
		Specialization: "Cardiology", LicenseNumber: "MD12345", CreatedAt: day("2020-01-15"),
	}},
	{"d2", clinic.DoctorRegistration{
		Email: "dr.muchogo@example.com", Name: "Dr. James Muchogo",
		Specialization: "Neurology", LicenseNumber: "MD67890", CreatedAt: day("2019-03-22"),
	}},
	{"d3", clinic.DoctorRegistration{
		Email: "dr.chen@example.com", Name: "Dr. Sarah Chenai",
		Specialization: "Pediatrics", LicenseNumber: "MD24680", CreatedAt: day("2021-07-05"),
	}},
}

func patient(key, name, email, dob string, g clinic.Gender, phone, addr, bt string, allergies, chronic []string) seedPatient {
	return seedPatient{key, clinic.PatientRegistration{
		Email: email, Name: name, DateOfBirth: dob, Gender: g,
		PatientProfile: clinic.PatientProfile{
			PhoneNumber:       str(phone),
			Address:           str(addr),
			BloodType:         blood(bt),
			Allergies:         allergies,
			ChronicConditions: chronic,
		},
	}}
}

var patients = []seedPatient{
	patient("p1", "Godknows Aresho", "aresho@example.com", "1990-01-01", clinic.GenderMale,
		"+263 123-4567", "123 Main Harae", "O+", []string{"Penicillin", "Peanuts"}, []string{"Hypertension"}),
	patient("p2", "Farirai Masocha", "masocha@example.com", "1985-05-15", clinic.GenderMale,
		"+263 987-6543", "456 Harae", "A-", []string{"Sulfa drugs"}, []string{"Asthma", "Diabetes"}),
	patient("p3", "Prince Muchogo", "prince@example.com", "1992-09-23", clinic.GenderMale,
		"+263 345-6789", "789 Baines", "B+", nil, []string{"Migraine"}),
	patient("p4", "Tinotenda Jecha", "Jecha@example.com", "1978-11-30", clinic.GenderMale,
		"+263 567-8901", "101 Chitungwiza", "AB+", []string{"Latex", "Shellfish"}, []string{"Arthritis"}),
	patient("p5", "Sarah Muda", "muda@example.com", "1995-03-12", clinic.GenderFemale,
		"+263 234-5678", "222 Mount", "O-", []string{"Ibuprofen"}, nil),
	patient("p6", "David Masocha", "david.masocha@example.com", "1982-07-19", clinic.GenderMale,
		"+263 876-5432", "333 Marondera", "A+", nil, []string{"Hyperthyroidism"}),
	patient("p7", "Lisa Murehwa", "lisa@example.com", "1989-12-05", clinic.GenderFemale,
		"+263 432-1098", "444 Murehwa", "B-", []string{"Dairy"}, []string{"Depression", "Anxiety"}),
	patient("p8", "Robert Mega", "robert@example.com", "1973-04-27", clinic.GenderMale,
		"+263 321-6547", "555 Matopo", "AB-", []string{"Pollen", "Dust mites"}, []string{"COPD"}),
}

var records = []seedRecord{
	{"r1", "p1", "d1", clinic.RecordInput{
		Description: "Regular checkup",
		Diagnosis:   "Healthy, slight elevation in blood pressure",
		Treatment:   "Recommended dietary changes and regular exercise",
		Status:      clinic.StatusResolved,
		Symptoms:    []string{"Fatigue", "Occasional headaches"},
		Medications: []clinic.Medication{
			{Name: "Lisinopril", Dosage: "10mg", Frequency: "Once daily", Duration: "30 days", Notes: "Take in the morning"},
		},
		CreatedAt: day("2023-01-15"),
	}},
	{"r2", "p1", "d2", clinic.RecordInput{
		Description: "Neurological consultation",
		Diagnosis:   "Tension headaches",
		Treatment:   "Stress management techniques and pain relievers as needed",
		Status:      clinic.StatusResolved,
		Symptoms:    []string{"Frequent headaches", "Neck stiffness"},
		Medications: []clinic.Medication{
			{Name: "Ibuprofen", Dosage: "400mg", Frequency: "As needed for pain", Duration: "PRN", Notes: "Do not exceed 1200mg in 24 hours"},
		},
		CreatedAt: day("2023-03-22"),
	}},
	{"r3", "p1", "d1", clinic.RecordInput{
		Description:  "Follow-up for blood pressure",
		Diagnosis:    "Hypertension, Stage 1",
		Treatment:    "Continued medication and lifestyle modifications",
		Status:       clinic.StatusActive,
		FollowUpDate: datePtr("2023-10-10"),
		Symptoms:     []string{"Occasional dizziness"},
		Medications: []clinic.Medication{
			{Name: "Lisinopril", Dosage: "20mg", Frequency: "Once daily", Duration: "90 days", Notes: "Increased from previous dosage"},
		},
		TestResults: []clinic.TestResult{
			{Name: "Blood Pressure", Result: "140/90 mmHg", Date: date("2023-07-10"), Notes: "Measured after 10 minutes of rest"},
			{Name: "Heart Rate", Result: "78 bpm", Date: date("2023-07-10"), Notes: "Regular rhythm"},
		},
		CreatedAt: day("2023-07-10"),
	}},
	{"r4", "p2", "d3", clinic.RecordInput{
		Description: "Annual physical examination",
		Diagnosis:   "Healthy, well-controlled asthma",
		Treatment:   "Continue current medications",
		Status:      clinic.StatusResolved,
		Symptoms:    []string{"Occasional shortness of breath with exercise"},
		Medications: []clinic.Medication{
			{Name: "Albuterol", Dosage: "2 puffs", Frequency: "As needed for shortness of breath", Duration: "PRN", Notes: "Use before exercise if needed"},
			{Name: "Fluticasone", Dosage: "1 puff", Frequency: "Twice daily", Duration: "Ongoing", Notes: "Rinse mouth after use"},
		},
		CreatedAt: day("2023-02-18"),
	}},
	{"r5", "p2", "d1", clinic.RecordInput{
		Description:  "Cardiology consultation",
		Diagnosis:    "Mild mitral valve prolapse, not clinically significant",
		Treatment:    "No specific treatment needed, annual follow-up",
		Status:       clinic.StatusResolved,
		FollowUpDate: datePtr("2024-05-03"),
		TestResults: []clinic.TestResult{
			{Name: "Echocardiogram", Result: "Mild mitral valve prolapse without regurgitation", Date: date("2023-05-03"), Notes: "No intervention required at this time"},
			{Name: "ECG", Result: "Normal sinus rhythm", Date: date("2023-05-03"), Notes: "No arrhythmias detected"},
		},
		CreatedAt: day("2023-05-03"),
	}},
	{"r6", "p3", "d2", clinic.RecordInput{
		Description:  "Migraine evaluation",
		Diagnosis:    "Chronic migraine with aura",
		Treatment:    "Preventive medication and lifestyle modifications",
		Status:       clinic.StatusActive,
		FollowUpDate: datePtr("2023-07-12"),
		Symptoms:     []string{"Severe headaches with visual disturbances", "Nausea"},
		Medications: []clinic.Medication{
			{Name: "Topiramate", Dosage: "50mg", Frequency: "Once daily", Duration: "90 days", Notes: "Take at bedtime"},
			{Name: "Sumatriptan", Dosage: "50mg", Frequency: "As needed for migraine attacks", Duration: "PRN", Notes: "Max 200mg in 24 hours"},
		},
		CreatedAt: day("2023-04-12"),
	}},
	{"r7", "p4", "d1", clinic.RecordInput{
		Description:  "Arthritis follow-up",
		Diagnosis:    "Osteoarthritis, moderate severity",
		Treatment:    "Physical therapy and pain management",
		Status:       clinic.StatusActive,
		FollowUpDate: datePtr("2023-09-28"),
		Symptoms:     []string{"Joint pain", "Morning stiffness", "Reduced range of motion"},
		Medications: []clinic.Medication{
			{Name: "Meloxicam", Dosage: "15mg", Frequency: "Once daily", Duration: "30 days", Notes: "Take with food"},
			{Name: "Acetaminophen", Dosage: "500mg", Frequency: "As needed for breakthrough pain", Duration: "PRN", Notes: "Do not exceed 3000mg in 24 hours"},
		},
		CreatedAt: day("2023-06-28"),
	}},
	{"r8", "p5", "d3", clinic.RecordInput{
		Description: "Preventive care visit",
		Diagnosis:   "Healthy",
		Treatment:   "Routine vaccinations updated",
		Status:      clinic.StatusResolved,
		TestResults: []clinic.TestResult{
			{Name: "Complete Blood Count", Result: "Within normal limits", Date: date("2023-03-30")},
			{Name: "Lipid Panel", Result: "Total cholesterol: 185 mg/dL, HDL: 55 mg/dL, LDL: 110 mg/dL, Triglycerides: 100 mg/dL", Date: date("2023-03-30"), Notes: "All values within normal range"},
		},
		CreatedAt: day("2023-03-30"),
	}},
}
