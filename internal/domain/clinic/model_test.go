package clinic

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1990-05-17", "1990-05-17", false},
		{" 2000-02-29 ", "2000-02-29", false},
		{"1990-05-17T23:30:00Z", "1990-05-17", false},
		{"1990-05-17T23:30:00-05:00", "1990-05-17", false},
		{"1990-05-15T00:00:00+02:00", "1990-05-15", false},
		{"1990-05-15T23:59:59.5+14:00", "1990-05-15", false},
		{"2001-02-29", "", true},
		{"17/05/1990", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDate(%q): expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDate(%q): %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		D  Date  `json:"d"`
		P  *Date `json:"p"`
		Z  Date  `json:"z"`
		NP *Date `json:"np"`
	}
	d := DateOf(time.Date(1975, 9, 3, 22, 0, 0, 0, time.UTC))
	b, err := json.Marshal(wrapper{D: d, P: &d})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"d":"1975-09-03","p":"1975-09-03","z":null,"np":null}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}

	var back wrapper
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !back.D.Equal(d.Time) || back.P == nil || !back.P.Equal(d.Time) || !back.Z.IsZero() || back.NP != nil {
		t.Errorf("round trip mismatch: %+v", back)
	}

	if err := json.Unmarshal([]byte(`{"d":"tomorrow"}`), &back); err == nil {
		t.Error("expected error for a malformed date")
	}
	if err := json.Unmarshal([]byte(`{"d":19750903}`), &back); err == nil {
		t.Error("expected error for a numeric date")
	}
}

func TestEnums(t *testing.T) {
	if !GenderOther.Valid() || Gender("other").Valid() {
		t.Error("gender values are upper case")
	}
	if !StatusFollowUp.Valid() || RecordStatus("CLOSED").Valid() {
		t.Error("unexpected record status validity")
	}
	if !BloodType("AB-").Valid() || BloodType("C+").Valid() {
		t.Error("unexpected blood type validity")
	}
	if !RoleDoctor.Valid() || Role("admin").Valid() {
		t.Error("only doctor and patient are user roles")
	}
}

func TestNormalizeList(t *testing.T) {
	if got := normalizeList(nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
	got := normalizeList([]string{" Asthma ", "", "  ", "Diabetes"})
	if len(got) != 2 || got[0] != "Asthma" || got[1] != "Diabetes" {
		t.Errorf("got %#v", got)
	}
}

func TestUserJSON_HidesPasswordHash(t *testing.T) {
	hash := "$2a$10$secret"
	b, err := json.Marshal(User{Email: "a@example.com", PasswordHash: &hash})
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(b) {
		t.Fatalf("invalid json %s", b)
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	if _, ok := m["passwordHash"]; ok {
		t.Error("password hash must not be serialized")
	}
}
