package question

import "testing"

func TestMissingRequired(t *testing.T) {
	questions := map[string][]Question{
		"item-1": {
			{ID: "q1", Question: "T-shirt size", Required: true},
			{ID: "q2", Question: "Dietary needs", Required: false},
		},
		"item-2": {
			{ID: "q3", Question: "Company", Required: true},
		},
	}

	answers := map[string][]Answer{
		"p1": {{PositionID: "p1", QuestionID: "q1", Answer: "M"}},
	}

	positionItems := map[string]string{
		"p1": "item-1",
		"p2": "item-1",
		"p3": "item-2",
	}

	missing := MissingRequired(questions, answers, positionItems)

	if len(missing["p1"]) != 0 {
		t.Fatalf("p1 answered its required question, got missing %v", missing["p1"])
	}
	if len(missing["p2"]) != 1 || missing["p2"][0].ID != "q1" {
		t.Fatalf("expected p2 to miss q1, got %v", missing["p2"])
	}
	if len(missing["p3"]) != 1 || missing["p3"][0].ID != "q3" {
		t.Fatalf("expected p3 to miss q3, got %v", missing["p3"])
	}
}

func TestMissingRequiredOptionalOnly(t *testing.T) {
	questions := map[string][]Question{
		"item-1": {{ID: "q1", Question: "Dietary needs", Required: false}},
	}

	missing := MissingRequired(questions, nil, map[string]string{"p1": "item-1"})
	if len(missing) != 0 {
		t.Fatalf("optional questions never gate checkout, got %v", missing)
	}
}
