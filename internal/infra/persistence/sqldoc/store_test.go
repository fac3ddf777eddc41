package sqldoc

import (
	"testing"
	"time"
)

func TestTimeValueScan(t *testing.T) {
	want := time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC)
	cases := []struct {
		name string
		src  any
		want time.Time
	}{
		{"time", want.In(time.FixedZone("x", 3600)), want},
		{"string", want.Format(time.RFC3339Nano), want},
		{"bytes", []byte(want.Format(time.RFC3339Nano)), want},
		{"nil", nil, time.Time{}},
	}
	for _, tc := range cases {
		var v timeValue
		if err := v.Scan(tc.src); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !v.t.Equal(tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, v.t, tc.want)
		}
	}
	var v timeValue
	if err := v.Scan(42); err == nil {
		t.Fatalf("expected error for int")
	}
	if err := v.Scan("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBucketKey(t *testing.T) {
	if got := BucketKey("doc", "lines"); got != "doc:lines" {
		t.Fatalf("unexpected key %s", got)
	}
	if len(Buckets) != 6 {
		t.Fatalf("unexpected bucket count %d", len(Buckets))
	}
}
