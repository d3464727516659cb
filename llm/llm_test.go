package llm

import "testing"

func TestParseFactsPlainJSON(t *testing.T) {
	facts := parseFacts(`{"name": "Ravi", "profession": "farmer"}`)
	if facts["name"] != "Ravi" || facts["profession"] != "farmer" {
		t.Errorf("unexpected facts: %v", facts)
	}
	if len(facts) != 2 {
		t.Errorf("got %d facts, want 2", len(facts))
	}
}

func TestParseFactsStripsCodeFences(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"fence with language tag", "```json\n{\"name\": \"Ravi\"}\n```"},
		{"bare fence", "```\n{\"name\": \"Ravi\"}\n```"},
		{"fence without newline", "```{\"name\": \"Ravi\"}```"},
		{"surrounding whitespace", "  \n{\"name\": \"Ravi\"}\n  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts := parseFacts(tc.raw)
			if facts["name"] != "Ravi" {
				t.Errorf("parseFacts(%q) = %v, want name=Ravi", tc.raw, facts)
			}
		})
	}
}

func TestParseFactsMalformedYieldsEmptyMap(t *testing.T) {
	cases := []string{
		"not json at all",
		"{\"name\": unquoted}",
		"[1, 2, 3]",
		"",
		"I could not find any facts.",
	}
	for _, raw := range cases {
		facts := parseFacts(raw)
		if facts == nil {
			t.Errorf("parseFacts(%q) returned nil, want empty map", raw)
		}
		if len(facts) != 0 {
			t.Errorf("parseFacts(%q) = %v, want empty", raw, facts)
		}
	}
}

func TestParseFactsFlattensNonStringValues(t *testing.T) {
	facts := parseFacts(`{"interests": ["farming", "weather"], "age": 41, "location": null}`)
	if facts["interests"] != "farming, weather" {
		t.Errorf("interests = %q, want %q", facts["interests"], "farming, weather")
	}
	if facts["age"] != "41" {
		t.Errorf("age = %q, want %q", facts["age"], "41")
	}
	if _, ok := facts["location"]; ok {
		t.Error("null value should be skipped")
	}
}

func TestParseFactsUnknownKeysPassThrough(t *testing.T) {
	facts := parseFacts(`{"favorite_crop": "wheat"}`)
	if facts["favorite_crop"] != "wheat" {
		t.Errorf("unknown key not passed through: %v", facts)
	}
}
