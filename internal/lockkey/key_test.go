package lockkey

import "testing"

func TestBuild(t *testing.T) {
	tests := []struct {
		name        string
		scope       string
		filters     map[string]any
		expected    string
		expectedErr error
	}{
		{
			name:     "single filter",
			scope:    "blood_collection",
			filters:  map[string]any{"donor_id": float64(42)},
			expected: "blood_collection|donor_id=42",
		},
		{
			name:     "multiple filters sorted",
			scope:    "physical_exam",
			filters:  map[string]any{"physical_exam_id": float64(7), "donor_id": float64(42)},
			expected: "physical_exam|donor_id=42|physical_exam_id=7",
		},
		{
			name:     "string filter value",
			scope:    "interview",
			filters:  map[string]any{"donor_id": "42"},
			expected: "interview|donor_id=42",
		},
		{
			name:     "fractional value kept",
			scope:    "interview",
			filters:  map[string]any{"version": 1.5},
			expected: "interview|version=1.5",
		},
		{
			name:        "missing scope",
			scope:       "  ",
			filters:     map[string]any{"donor_id": 1},
			expectedErr: ErrMissingScope,
		},
		{
			name:        "missing filters",
			scope:       "interview",
			filters:     nil,
			expectedErr: ErrMissingFilters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := Build(tt.scope, tt.filters)
			if tt.expectedErr != nil {
				if err != tt.expectedErr {
					t.Fatalf("expected error %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, key)
			}
		})
	}
}

func TestBuildOrderIndependent(t *testing.T) {
	a, err := Build("blood_collection", map[string]any{"donor_id": 42, "blood_collection_id": 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Build("blood_collection", map[string]any{"blood_collection_id": 9, "donor_id": 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("keys differ for same filters: %q vs %q", a, b)
	}
}

func TestBuildDistinctFilters(t *testing.T) {
	a, _ := Build("blood_collection", map[string]any{"donor_id": 42})
	b, _ := Build("blood_collection", map[string]any{"donor_id": 43})
	c, _ := Build("blood_collection", map[string]any{"donor_id": 42, "blood_collection_id": 1})
	if a == b || a == c || b == c {
		t.Errorf("expected distinct keys, got %q %q %q", a, b, c)
	}
}
