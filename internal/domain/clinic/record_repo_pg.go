package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicrecords/records/internal/platform/apperr"
	"github.com/clinicrecords/records/internal/platform/db"
)

const recordCols = `r.id, r.patient_id, r.doctor_id, r.description, r.diagnosis, r.treatment,
	r.status, r.follow_up_date, r.symptoms, r.medications, r.test_results, r.notes,
	r.created_at, r.updated_at`

// recordSelect joins each record to its patient (p, u) and doctor (d, du).
const recordSelect = `SELECT ` + recordCols + `, ` + patientCols + `, ` +
	`u.id, u.email, u.name, u.role, u.password_hash, u.created_at, u.updated_at, ` +
	doctorCols + `, du.id, du.email, du.name, du.role, du.password_hash, du.created_at, du.updated_at
	FROM medical_record r
	JOIN patient p ON p.user_id = r.patient_id
	JOIN app_user u ON u.id = p.user_id
	JOIN doctor d ON d.user_id = r.doctor_id
	JOIN app_user du ON du.id = d.user_id`

type recordRow struct {
	r           MedicalRecord
	followUp    *time.Time
	medications []byte
	testResults []byte
	patient     patientRow
	doctor      Doctor
}

func (rr *recordRow) dest() []interface{} {
	r := &rr.r
	dest := []interface{}{
		&r.ID, &r.PatientID, &r.DoctorID, &r.Description, &r.Diagnosis, &r.Treatment,
		&r.Status, &rr.followUp, &r.Symptoms, &rr.medications, &rr.testResults, &r.Notes,
		&r.CreatedAt, &r.UpdatedAt,
	}
	dest = append(dest, rr.patient.dest()...)
	return append(dest, doctorDest(&rr.doctor)...)
}

func (rr *recordRow) record() (*MedicalRecord, error) {
	r := rr.r
	if rr.followUp != nil {
		d := DateOf(*rr.followUp)
		r.FollowUpDate = &d
	}
	r.Symptoms = normalizeList(r.Symptoms)
	r.Medications = []Medication{}
	if err := json.Unmarshal(rr.medications, &r.Medications); err != nil {
		return nil, apperr.Internal(fmt.Errorf("decode medications of record %s: %w", r.ID, err))
	}
	r.TestResults = []TestResult{}
	if err := json.Unmarshal(rr.testResults, &r.TestResults); err != nil {
		return nil, apperr.Internal(fmt.Errorf("decode test results of record %s: %w", r.ID, err))
	}
	if r.Medications == nil {
		r.Medications = []Medication{}
	}
	if r.TestResults == nil {
		r.TestResults = []TestResult{}
	}
	r.Patient = rr.patient.patient()
	d := rr.doctor
	r.Doctor = &d
	return &r, nil
}

// recordArgs returns the encoded JSONB and DATE arguments of r.
func recordArgs(r *MedicalRecord) (meds, tests []byte, followUp *time.Time, err error) {
	if r.Medications == nil {
		r.Medications = []Medication{}
	}
	if r.TestResults == nil {
		r.TestResults = []TestResult{}
	}
	r.Symptoms = normalizeList(r.Symptoms)
	if meds, err = json.Marshal(r.Medications); err != nil {
		return nil, nil, nil, apperr.Internal(fmt.Errorf("encode medications: %w", err))
	}
	if tests, err = json.Marshal(r.TestResults); err != nil {
		return nil, nil, nil, apperr.Internal(fmt.Errorf("encode test results: %w", err))
	}
	if r.FollowUpDate != nil {
		t := r.FollowUpDate.Time
		followUp = &t
	}
	return meds, tests, followUp, nil
}

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	stamp(&rec.CreatedAt, &rec.UpdatedAt)
	meds, tests, followUp, err := recordArgs(rec)
	if err != nil {
		return err
	}
	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medical_record (
			id, patient_id, doctor_id, description, diagnosis, treatment, status,
			follow_up_date, symptoms, medications, test_results, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.PatientID, rec.DoctorID, rec.Description, rec.Diagnosis, rec.Treatment, string(rec.Status),
		followUp, rec.Symptoms, meds, tests, rec.Notes, rec.CreatedAt, rec.UpdatedAt,
	)
	return db.Classify(err, "medical record not found", constraints)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	var rr recordRow
	err := db.Conn(ctx, r.pool).QueryRow(ctx, recordSelect+` WHERE r.id = $1`, id).Scan(rr.dest()...)
	if err != nil {
		return nil, db.Classify(err, "medical record not found", constraints)
	}
	return rr.record()
}

func (r *recordRepoPG) Update(ctx context.Context, rec *MedicalRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	meds, tests, followUp, err := recordArgs(rec)
	if err != nil {
		return err
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE medical_record SET
			description = $2, diagnosis = $3, treatment = $4, status = $5, follow_up_date = $6,
			symptoms = $7, medications = $8, test_results = $9, notes = $10, updated_at = $11
		WHERE id = $1`,
		rec.ID, rec.Description, rec.Diagnosis, rec.Treatment, string(rec.Status), followUp,
		rec.Symptoms, meds, tests, rec.Notes, rec.UpdatedAt,
	)
	if err != nil {
		return db.Classify(err, "medical record not found", constraints)
	}
	if tag.RowsAffected() == 0 {
		return db.Classify(pgx.ErrNoRows, "medical record not found", constraints)
	}
	return nil
}

func (r *recordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM medical_record WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "medical record not found", constraints)
	}
	if tag.RowsAffected() == 0 {
		return db.Classify(pgx.ErrNoRows, "medical record not found", constraints)
	}
	return nil
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f RecordFilter) ([]*MedicalRecord, error) {
	b := &sqlBuilder{}
	b.where("r.patient_id = " + b.arg(patientID))
	recordConditions(b, "r", f)
	recs, err := r.list(ctx, recordSelect+b.clause()+` ORDER BY r.created_at DESC, r.id`, b.args...)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		rec.Patient = nil
	}
	return recs, nil
}

func (r *recordRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*MedicalRecord, error) {
	recs, err := r.list(ctx, recordSelect+` WHERE r.doctor_id = $1 ORDER BY r.created_at DESC, r.id`, doctorID)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		rec.Doctor = nil
	}
	return recs, nil
}

func (r *recordRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*MedicalRecord, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(err, "medical record not found", constraints)
	}
	defer rows.Close()

	out := []*MedicalRecord{}
	for rows.Next() {
		var rr recordRow
		if err := rows.Scan(rr.dest()...); err != nil {
			return nil, db.Classify(err, "medical record not found", constraints)
		}
		rec, err := rr.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "medical record not found", constraints)
	}
	return out, nil
}

func (r *recordRepoPG) Stats(ctx context.Context) (*DashboardStats, error) {
	var s DashboardStats
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM patient),
			(SELECT count(*) FROM doctor),
			(SELECT count(*) FROM medical_record),
			(SELECT count(*) FROM medical_record WHERE status = 'ACTIVE'),
			(SELECT count(*) FROM medical_record WHERE follow_up_date IS NOT NULL)`,
	).Scan(&s.TotalPatients, &s.TotalDoctors, &s.TotalRecords, &s.ActiveRecords, &s.FollowUps)
	if err != nil {
		return nil, db.Classify(err, "stats not available", constraints)
	}
	return &s, nil
}
