package ai

import (
	"testing"
)

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	type routeChoice struct {
		Route      string  `json:"route"`
		Confidence float64 `json:"confidence,omitempty"`
	}

	tests := []struct {
		name  string
		input string
		want  routeChoice
	}{
		{
			name:  "valid json object",
			input: `{"route":"local"}`,
			want:  routeChoice{Route: "local"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{route: 'local'}`,
			want:  routeChoice{Route: "local"},
		},
		{
			name:  "trailing comma",
			input: `{"route":"local",}`,
			want:  routeChoice{Route: "local"},
		},
		{
			name:  "missing endbracket",
			input: `{"route":"local`,
			want:  routeChoice{Route: "local"},
		},
		{
			name:  "stringified invalid json object",
			input: `"{route: 'local'}"`,
			want:  routeChoice{Route: "local"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"route\": \"local\"\n}\n",
			want:  routeChoice{Route: "local"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got routeChoice
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.Route != tc.want.Route || got.Confidence != tc.want.Confidence {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_ArrayVariants(t *testing.T) {
	type claim struct {
		Text string `json:"text"`
	}

	input := `[{text:'A'},{text:'B',}]`
	var got []claim
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got) != 2 || got[0].Text != "A" || got[1].Text != "B" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want two claims A,B", got)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	type claim struct {
		Text string `json:"text"`
	}

	var got claim
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestUnmarshalFlexible_StringifiedWithNewlines(t *testing.T) {
	type primerResult struct {
		Answer    string   `json:"answer"`
		FollowUps []string `json:"follow_ups"`
	}

	input := `"{\n  \"answer\": \"Partial.\",\n  \"follow_ups\": [\"What is the total?\", \"Who signed it?\"]\n  }\n"`
	var got primerResult
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if got.Answer != "Partial." {
		t.Fatalf("UnmarshalFlexible() answer = %q, want %q", got.Answer, "Partial.")
	}
	if len(got.FollowUps) != 2 {
		t.Fatalf("UnmarshalFlexible() follow_ups length = %d, want 2", len(got.FollowUps))
	}
}
