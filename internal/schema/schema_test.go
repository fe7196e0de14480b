package schema

import (
	"testing"
	"time"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Sugar", "sugar"},
		{"  Sugar  Cane ", "sugar cane"},
		{"RICE\t1KG", "rice 1kg"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseEntity(t *testing.T) {
	tests := []struct {
		in   string
		want Entity
	}{
		{"items", EntityItem},
		{"Sale", EntitySale},
		{"workers", EntityWorker},
		{"users", EntityWorker},
	}
	for _, tt := range tests {
		got, err := ParseEntity(tt.in)
		if err != nil {
			t.Fatalf("ParseEntity(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseEntity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseEntity("orders"); err == nil {
		t.Error("ParseEntity(orders) should fail")
	}
}

func TestEntity_RemoteTable(t *testing.T) {
	if got := EntityWorker.RemoteTable(); got != "workers" {
		t.Errorf("EntityWorker.RemoteTable() = %q, want workers", got)
	}
	if got := EntityItem.RemoteTable(); got != "items" {
		t.Errorf("EntityItem.RemoteTable() = %q, want items", got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.FixedZone("EAT", 3*3600))
	s := FormatTime(in)
	if s != "2026-03-04T02:06:07.890Z" {
		t.Fatalf("FormatTime = %q", s)
	}
	out, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("ParseTime = %v, want %v", out, in)
	}

	if _, err := ParseTime("2026-03-04 02:06:07"); err != nil {
		t.Errorf("ParseTime(sqlite datetime) failed: %v", err)
	}
}

func TestItem_NormalizeAndValidate(t *testing.T) {
	item := &Item{Name: " Sugar ", Alias: "SUKARI", Quantity: 10, MP: 100, SP: 120, Target: Float(0)}
	item.Normalize()

	if item.Name != "sugar" || item.Alias != "sukari" {
		t.Errorf("Normalize() = (%q, %q)", item.Name, item.Alias)
	}
	if item.Target != nil {
		t.Errorf("zero target should normalize to nil, got %v", *item.Target)
	}
	if err := item.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}

	bad := []*Item{
		{Name: "", Quantity: 1},
		{Name: "x", Quantity: -1},
		{Name: "x", MP: -1},
		{Name: "x", Target: Float(-3)},
	}
	for i, it := range bad {
		if err := it.Validate(); err == nil {
			t.Errorf("case %d: Validate() should fail", i)
		}
	}
}

func TestItem_FieldsOmitBookkeeping(t *testing.T) {
	item := &Item{ID: 7, Name: "salt", Rev: 3, Synced: true}
	fields := item.Fields()
	for _, k := range []string{"synced", "rev"} {
		if _, ok := fields[k]; ok {
			t.Errorf("Fields() should not contain %q", k)
		}
	}
	if fields["id"] != int64(7) {
		t.Errorf("Fields()[id] = %v", fields["id"])
	}
	if fields["target"] != nil {
		t.Errorf("unset target should be nil, got %v", fields["target"])
	}
}

func TestSale(t *testing.T) {
	s := NewSale("sugar", 100, 120, 3)
	if s.Subtotal != 360 {
		t.Errorf("Subtotal = %g, want 360", s.Subtotal)
	}
	if s.Profit() != 60 {
		t.Errorf("Profit() = %g, want 60", s.Profit())
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}

	s.Subtotal = 1
	if err := s.Validate(); err == nil {
		t.Error("Validate() should reject a subtotal that is not qty*sp")
	}

	zero := NewSale("sugar", 100, 120, 0)
	if err := zero.Validate(); err == nil {
		t.Error("Validate() should reject qty 0")
	}
}

func TestWorker_Password(t *testing.T) {
	hash, err := HashPassword("Pass@1234")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "Pass@1234" {
		t.Fatal("HashPassword returned plaintext")
	}

	w := &Worker{ID: "w1", FullName: "Amina Otieno", Username: "amina", Role: RoleClient, Password: hash}
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if !w.CheckPassword("Pass@1234") {
		t.Error("CheckPassword should accept the right password")
	}
	if w.CheckPassword("wrong") {
		t.Error("CheckPassword should reject a wrong password")
	}

	w.Role = "manager"
	if err := w.Validate(); err == nil {
		t.Error("Validate() should reject unknown role")
	}
}
