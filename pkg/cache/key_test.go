package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "study scoped",
			key:  Key{Namespace: "sites", Scope: "STUDY1"},
			want: "edc:cache:sites:STUDY1",
		},
		{
			name: "global scope",
			key:  Key{Namespace: "studies", Scope: GlobalKey},
			want: "edc:cache:studies:__global__",
		},
		{
			name: "empty scope falls back to global",
			key:  Key{Namespace: "studies"},
			want: "edc:cache:studies:__global__",
		},
		{
			name: "namespace colons trimmed",
			key:  Key{Namespace: ":forms:", Scope: "S"},
			want: "edc:cache:forms:S",
		},
		{
			name: "no namespace",
			key:  Key{Scope: "S"},
			want: "edc:cache:S",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPattern(t *testing.T) {
	if got := Pattern("records"); got != "edc:cache:records:*" {
		t.Errorf("Pattern() = %q", got)
	}
}
