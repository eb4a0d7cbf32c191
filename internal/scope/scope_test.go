package scope

import "testing"

func TestOverlap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		a     []string
		b     []string
		want  bool
		match Match
	}{
		{"exact match", []string{"foo.go"}, []string{"foo.go"}, true, Match{"foo.go", "foo.go"}},
		{"dir contains", []string{"internal/"}, []string{"internal/api/"}, true, Match{"internal/", "internal/api/"}},
		{"no overlap", []string{"cmd/"}, []string{"internal/"}, false, Match{}},
		{"second pattern overlaps", []string{"cmd/", "internal/"}, []string{"pkg/", "internal/api/"}, true, Match{"internal/", "internal/api/"}},
		{"glob vs literal", []string{"cmd/*.go"}, []string{"cmd/root.go"}, true, Match{"cmd/*.go", "cmd/root.go"}},
		{"doublestar vs literal", []string{"api/**/*.proto"}, []string{"api/v1/service.proto"}, true, Match{"api/**/*.proto", "api/v1/service.proto"}},
		{"empty a", nil, []string{"internal/"}, false, Match{}},
		{"empty b", []string{"internal/"}, nil, false, Match{}},
		{"both empty", nil, nil, false, Match{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, got := Overlap(tt.a, tt.b)
			if got != tt.want {
				t.Fatalf("Overlap(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if m != tt.match {
				t.Errorf("Overlap(%v, %v) match = %+v, want %+v", tt.a, tt.b, m, tt.match)
			}
		})
	}
}

func TestPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"exact match", "internal/api/handler.go", "internal/api/handler.go", true},
		{"parent contains child", "internal", "internal/api", true},
		{"child contains parent", "internal/api", "internal", true},
		{"trailing slash parent", "internal/", "internal/api/", true},
		{"dot covers everything", ".", "cmd/root.go", true},
		{"backslashes normalized", `internal\api`, "internal/api/x.go", true},
		{"no overlap", "cmd/", "internal/", false},
		{"prefix is not containment", "internal/api", "internal/apiv2/x.go", false},
		{"glob star matches literal", "internal/*.go", "internal/main.go", true},
		{"glob star no match", "internal/*.go", "cmd/main.go", false},
		{"doublestar containment", "internal/**/*.go", "internal/api/handler.go", true},
		{"doublestar different dirs", "internal/**", "cmd/**", false},
		{"sibling dirs", "internal/api/", "internal/loop/", false},
		{"same dir incompatible extensions", "internal/*.go", "internal/*.ts", false},
		{"same dir compatible globs", "internal/*.go", "internal/*.go", true},
		{"same dir wildcard vs extension", "internal/*", "internal/*.go", true},
		{"question mark treated as overlapping", "internal/?.go", "internal/*.ts", true},
		{"blank never overlaps", "  ", "internal", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Patterns(tt.a, tt.b); got != tt.want {
				t.Errorf("Patterns(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatchString(t *testing.T) {
	t.Parallel()
	if got := (Match{A: "a", B: "a"}).String(); got != "a" {
		t.Errorf("String() = %q, want %q", got, "a")
	}
	if got := (Match{A: "a/*", B: "a/b"}).String(); got != "a/* / a/b" {
		t.Errorf("String() = %q, want %q", got, "a/* / a/b")
	}
}
