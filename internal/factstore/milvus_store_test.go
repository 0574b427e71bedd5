package factstore

import (
	"reflect"
	"testing"
	"time"

	"tabula/internal/models"
)

func TestColumnsRoundTrip(t *testing.T) {
	s := &MilvusStore{dim: 2}
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	records := []models.FactRecord{
		{
			ID:          "f1",
			UserID:      "u1",
			Fact:        "loops are written as repeat N",
			Description: "loop syntax",
			Examples:    []string{"repeat 3: print", "repeat 10: count"},
			MessageUID:  "m1",
			IsRelevant:  true,
			CreatedAt:   created,
			Vector:      []float32{0.1, 0.2},
		},
		{
			ID:         "f2",
			UserID:     "u1",
			Fact:       "pi equals 3.14",
			MessageUID: "m2",
			CreatedAt:  created,
			Vector:     []float32{0.3, 0.4},
		},
	}

	cols, err := s.columnsFromRecords(records)
	if err != nil {
		t.Fatalf("columnsFromRecords returned error: %v", err)
	}

	got, err := recordsFromColumns(cols, len(records))
	if err != nil {
		t.Fatalf("recordsFromColumns returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records back, got %d", len(got))
	}

	want := []string{"repeat 3: print", "repeat 10: count"}
	if !reflect.DeepEqual(got[0].Examples, want) {
		t.Errorf("examples did not survive the round trip: %v, want %v", got[0].Examples, want)
	}
	if got[1].Examples != nil {
		t.Errorf("record without examples should come back with none, got %v", got[1].Examples)
	}
	if got[0].Fact != records[0].Fact || got[0].Description != records[0].Description {
		t.Errorf("fact fields = %q/%q, want %q/%q", got[0].Fact, got[0].Description, records[0].Fact, records[0].Description)
	}
	if !got[0].CreatedAt.Equal(created) {
		t.Errorf("created at = %v, want %v", got[0].CreatedAt, created)
	}
	if !got[0].IsRelevant || got[1].IsRelevant {
		t.Errorf("relevance flags = %v/%v, want true/false", got[0].IsRelevant, got[1].IsRelevant)
	}
	if !reflect.DeepEqual(got[0].Vector, records[0].Vector) {
		t.Errorf("vector = %v, want %v", got[0].Vector, records[0].Vector)
	}
}

func TestColumnsFromRecordsRejectsWrongDimension(t *testing.T) {
	s := &MilvusStore{dim: 4}
	_, err := s.columnsFromRecords([]models.FactRecord{
		{ID: "f1", Vector: []float32{0.1, 0.2}},
	})
	if err == nil {
		t.Fatal("expected a dimension mismatch error, got nil")
	}
}

func TestExamplesEncoding(t *testing.T) {
	encoded, err := encodeExamples(nil)
	if err != nil || encoded != "" {
		t.Errorf("empty list should encode to the empty string, got %q, %v", encoded, err)
	}
	if got := decodeExamples(""); got != nil {
		t.Errorf("empty string should decode to nil, got %v", got)
	}
	if got := decodeExamples("not json"); got != nil {
		t.Errorf("garbage should decode to nil, got %v", got)
	}
}
