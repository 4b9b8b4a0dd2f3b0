package storage

import "testing"

func TestParseURL(t *testing.T) {
	tests := []struct {
		ref         string
		bucket, key string
		ok          bool
	}{
		{"s3://scans/2024/bill.pdf", "scans", "2024/bill.pdf", true},
		{"s3://scans/a.png", "scans", "a.png", true},
		{"s3://scans/", "", "", false},
		{"s3://scans", "", "", false},
		{"s3:///key.pdf", "", "", false},
		{"https://scans/key.pdf", "", "", false},
	}
	for _, tt := range tests {
		b, k, err := ParseURL(tt.ref)
		if (err == nil) != tt.ok {
			t.Errorf("ParseURL(%q) err = %v", tt.ref, err)
			continue
		}
		if b != tt.bucket || k != tt.key {
			t.Errorf("ParseURL(%q) = %q, %q", tt.ref, b, k)
		}
	}
}
