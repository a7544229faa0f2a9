package util

import (
	"reflect"
	"testing"
)

func TestRewriteCitations(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		want      string
		wantOrder []string
	}{
		{
			name:      "single citation",
			answer:    "The total is $29,900.00 [[chunk-1]].",
			want:      "The total is $29,900.00 [1].",
			wantOrder: []string{"chunk-1"},
		},
		{
			name:      "repeated source keeps number",
			answer:    "Due [[c2]] and payable [[c1]], see also [[c2]].",
			want:      "Due [1] and payable [2], see also [1].",
			wantOrder: []string{"c2", "c1"},
		},
		{
			name:      "malformed marker passes through",
			answer:    "Matrix entry [[i, j]] stays.",
			want:      "Matrix entry [[i, j]] stays.",
			wantOrder: nil,
		},
		{
			name:      "unterminated marker passes through",
			answer:    "Dangling [[c1 at the end",
			want:      "Dangling [[c1 at the end",
			wantOrder: nil,
		},
		{
			name:      "extra bracket before citation",
			answer:    "Nested [[[c1]] works.",
			want:      "Nested [[1] works.",
			wantOrder: []string{"c1"},
		},
		{
			name:      "no citations",
			answer:    "No sources here.",
			want:      "No sources here.",
			wantOrder: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, order := RewriteCitations(tt.answer)
			if got != tt.want {
				t.Fatalf("RewriteCitations() = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(order, tt.wantOrder) {
				t.Fatalf("order = %v, want %v", order, tt.wantOrder)
			}
		})
	}
}

func TestIsCitationID(t *testing.T) {
	valid := []string{"c1", "chunk_42", "V1StGXR8-Z5jdHi6B-myT"}
	for _, id := range valid {
		if !isCitationID(id) {
			t.Fatalf("isCitationID(%q) = false, want true", id)
		}
	}
	invalid := []string{"", "a b", "x]y", "ü"}
	for _, id := range invalid {
		if isCitationID(id) {
			t.Fatalf("isCitationID(%q) = true, want false", id)
		}
	}
}
