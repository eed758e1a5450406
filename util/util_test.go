package util

import "testing"

func TestIsImage(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.jpg", true},
		{"a.jpeg", true},
		{"a.png", true},
		{"a.gif", true},
		{"A.JPG", true},
		{"nested/b.PNG", true},
		{"a.txt", false},
		{"a.mp4", false},
		{"noext", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsImage(tt.name); got != tt.want {
			t.Errorf("IsImage(%q) = %t, want %t", tt.name, got, tt.want)
		}
	}
}
