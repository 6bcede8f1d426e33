package clinic

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicrecords/records/internal/platform/apperr"
	"github.com/clinicrecords/records/internal/platform/db"
	"github.com/clinicrecords/records/internal/platform/db/dbtest"
	"github.com/clinicrecords/records/pkg/pagination"
)

func newPGService(t *testing.T) (*Service, *pgxpool.Pool) {
	t.Helper()
	pool := dbtest.Pool(t)
	svc := NewService(NewUserRepo(pool), NewDoctorRepo(pool), NewPatientRepo(pool), NewRecordRepo(pool), db.NewTxManager(pool))
	return svc, pool
}

func TestPG_RegisterDoctorConflictRollsBack(t *testing.T) {
	svc, _ := newPGService(t)
	ctx := context.Background()

	u, d := mustDoctor(t, svc, "Dr. Sarah Johnson", "sarah@example.com", "MD-100")
	if d.UserID != u.ID {
		t.Fatalf("doctor userId %s != user id %s", d.UserID, u.ID)
	}

	_, _, err := svc.RegisterDoctor(ctx, DoctorRegistration{
		Email: "other@example.com", Name: "Dr. Other", Specialization: "S", LicenseNumber: "MD-100",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.GetUserByEmail(ctx, "other@example.com"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("user insert should have been rolled back, got %v", err)
	}

	_, _, err = svc.RegisterDoctor(ctx, DoctorRegistration{
		Email: "SARAH@example.com", Name: "Dr. Dup", Specialization: "S", LicenseNumber: "MD-101",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected case-insensitive email conflict, got %v", err)
	}
}

func TestPG_PatientAndRecordsRoundTrip(t *testing.T) {
	svc, _ := newPGService(t)
	ctx := context.Background()

	doc, _ := mustDoctor(t, svc, "Dr. A", "a@example.com", "MD-A")
	ab := BloodType("AB+")
	pu, _, err := svc.RegisterPatient(ctx, PatientRegistration{
		Email: "tendai@example.com", Name: "Tendai Masocha", DateOfBirth: "1990-05-17", Gender: GenderMale,
		PatientProfile: PatientProfile{BloodType: &ab, Allergies: []string{"Penicillin"}},
	})
	if err != nil {
		t.Fatalf("register patient: %v", err)
	}

	p, err := svc.GetPatientByUserID(ctx, pu.ID)
	if err != nil {
		t.Fatalf("get patient: %v", err)
	}
	if p.DateOfBirth.String() != "1990-05-17" || p.BloodType == nil || *p.BloodType != ab {
		t.Errorf("patient did not round trip: %+v", p.Patient)
	}
	if len(p.Records) != 0 || p.Records == nil {
		t.Errorf("expected empty records, got %v", p.Records)
	}

	follow, _ := ParseDate("2024-06-15")
	older, err := svc.CreateMedicalRecord(ctx, RecordInput{
		PatientID: pu.ID, DoctorID: doc.ID, Description: "d1", Diagnosis: "g1", Treatment: "t1",
		FollowUpDate: &follow,
		Medications:  []Medication{{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily", Duration: "7 days"}},
		TestResults:  []TestResult{{Name: "CBC", Result: "normal", Date: follow}},
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	newer := mustRecord(t, svc, pu.ID, doc.ID)

	recs, err := svc.ListMedicalRecordsByPatient(ctx, pu.ID, RecordFilter{})
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != newer.ID || recs[1].ID != older.ID {
		t.Fatalf("expected newest first, got %v", recs)
	}
	got := recs[1]
	if got.Doctor == nil || got.Doctor.User == nil || got.Doctor.User.Email != "a@example.com" {
		t.Errorf("expected nested doctor user, got %+v", got.Doctor)
	}
	if len(got.Medications) != 1 || got.Medications[0].Dosage != "500mg" {
		t.Errorf("medications did not round trip: %+v", got.Medications)
	}
	if len(got.TestResults) != 1 || got.TestResults[0].Date.String() != "2024-06-15" {
		t.Errorf("test results did not round trip: %+v", got.TestResults)
	}
	if got.FollowUpDate == nil || got.FollowUpDate.String() != "2024-06-15" {
		t.Errorf("follow-up date did not round trip: %v", got.FollowUpDate)
	}

	none, err := svc.ListMedicalRecordsByPatient(ctx, uuid.New(), RecordFilter{})
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty list for unknown patient, got %v %v", none, err)
	}

	resolved := StatusResolved
	if _, err := svc.UpdateMedicalRecord(ctx, older.ID, RecordPatch{Status: &resolved}); err != nil {
		t.Fatalf("update: %v", err)
	}
	full, err := svc.GetMedicalRecord(ctx, older.ID)
	if err != nil || full.Status != StatusResolved || full.Patient == nil || full.Patient.User == nil {
		t.Errorf("unexpected record after update: %+v %v", full, err)
	}

	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := DashboardStats{TotalPatients: 1, TotalDoctors: 1, TotalRecords: 2, ActiveRecords: 1, FollowUps: 1}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	if err := svc.DeleteMedicalRecord(ctx, newer.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteMedicalRecord(ctx, newer.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPG_PatientsWithRecordsCannotBeDeleted(t *testing.T) {
	svc, pool := newPGService(t)
	ctx := context.Background()
	doc, _ := mustDoctor(t, svc, "Dr. A", "a@example.com", "MD-A")
	pat, _ := mustPatient(t, svc, "Pat", "pat@example.com")
	mustRecord(t, svc, pat.ID, doc.ID)

	_, err := pool.Exec(ctx, `DELETE FROM patient WHERE user_id = $1`, pat.ID)
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
	if kind := apperr.KindOf(db.Classify(err, "", nil)); kind != apperr.KindNotFound {
		t.Errorf("expected RESTRICT violation to classify as not found, got %s", kind)
	}
}

func TestPG_ListPatients(t *testing.T) {
	svc, _ := newPGService(t)
	ctx := context.Background()
	docA, _ := mustDoctor(t, svc, "Dr. A", "a@example.com", "MD-A")
	docB, _ := mustDoctor(t, svc, "Dr. B", "b@example.com", "MD-B")

	var ids []uuid.UUID
	for i, name := range []string{"Tendai Masocha", "David Masocha", "Rudo Moyo", "Chipo Dube", "Farai Ncube", "Nyasha Banda", "Tatenda Phiri", "Kuda_Sibanda"} {
		u, _ := mustPatient(t, svc, name, fmt.Sprintf("patient%d@example.com", i))
		ids = append(ids, u.ID)
	}
	mustRecord(t, svc, ids[0], docA.ID)
	mustRecord(t, svc, ids[2], docB.ID)

	page := func(q PatientQuery) *pagination.Response[*Patient] {
		t.Helper()
		resp, err := svc.ListPatients(ctx, q)
		if err != nil {
			t.Fatalf("list %+v: %v", q, err)
		}
		return resp
	}

	r := page(PatientQuery{Search: "masocha", Page: pagination.Params{Page: 1, PageSize: 10}})
	if r.Total != 2 || len(r.Items) != 2 || r.Items[0].User.Name != "David Masocha" {
		t.Errorf("search masocha: total=%d items=%+v", r.Total, r.Items)
	}

	r1 := page(PatientQuery{Page: pagination.Params{Page: 1, PageSize: 5}})
	r2 := page(PatientQuery{Page: pagination.Params{Page: 2, PageSize: 5}})
	if len(r1.Items) != 5 || len(r2.Items) != 3 || r1.Total != 8 || r2.Total != 8 {
		t.Errorf("pagination: %d/%d items, totals %d/%d", len(r1.Items), len(r2.Items), r1.Total, r2.Total)
	}

	// "_" must match literally, not as a single-character wildcard.
	r = page(PatientQuery{Search: "a_s", Page: pagination.Default()})
	if r.Total != 1 || r.Items[0].UserID != ids[7] {
		t.Errorf("escaped search: total=%d", r.Total)
	}

	r = page(PatientQuery{Page: pagination.Default(), Records: RecordFilter{DoctorID: docB.ID}})
	if r.Total != 1 || r.Items[0].UserID != ids[2] {
		t.Errorf("doctor filter: total=%d", r.Total)
	}

	today := DateOf(time.Now())
	r = page(PatientQuery{Page: pagination.Default(), Records: RecordFilter{Status: StatusActive, To: &today}})
	if r.Total != 2 {
		t.Errorf("status and inclusive date filter: total=%d", r.Total)
	}

	r = page(PatientQuery{Page: pagination.Default(), Sort: "name", Order: "desc"})
	if r.Items[0].User.Name != "Tendai Masocha" {
		t.Errorf("desc sort: first is %s", r.Items[0].User.Name)
	}
}

func TestPG_UpdatePatientProfile(t *testing.T) {
	svc, _ := newPGService(t)
	ctx := context.Background()
	u, _ := mustPatient(t, svc, "Pat", "pat@example.com")

	conds := []string{"Hypertension"}
	if _, err := svc.UpdatePatientProfile(ctx, u.ID, PatientPatch{
		Name:              strPtr("Pat Renamed"),
		ChronicConditions: &conds,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, err := svc.GetPatientByUserID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.User.Name != "Pat Renamed" || len(p.ChronicConditions) != 1 {
		t.Errorf("update not persisted: %+v", p.Patient)
	}
	if !p.UpdatedAt.After(p.CreatedAt) && !p.UpdatedAt.Equal(p.CreatedAt) {
		t.Errorf("updatedAt went backwards: %v < %v", p.UpdatedAt, p.CreatedAt)
	}
}
