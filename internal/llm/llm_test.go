package llm

import (
	"errors"
	"testing"

	"tabula/internal/models"
)

type sample struct {
	Fact        string `json:"fact"`
	Description string `json:"description"`
}

func TestDecodeJSONPlainObject(t *testing.T) {
	var out sample
	err := DecodeJSON(`{"fact": "uses Go", "description": "primary language"}`, &out)
	if err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if out.Fact != "uses Go" || out.Description != "primary language" {
		t.Errorf("decoded %+v", out)
	}
}

func TestDecodeJSONCodeFence(t *testing.T) {
	raw := "```json\n{\"fact\": \"uses Go\"}\n```"
	var out sample
	if err := DecodeJSON(raw, &out); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if out.Fact != "uses Go" {
		t.Errorf("fact = %q", out.Fact)
	}
}

func TestDecodeJSONSurroundingProse(t *testing.T) {
	raw := `Sure, here is the result: {"fact": "uses Go"} hope that helps!`
	var out sample
	if err := DecodeJSON(raw, &out); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if out.Fact != "uses Go" {
		t.Errorf("fact = %q", out.Fact)
	}
}

func TestDecodeJSONEmptyReply(t *testing.T) {
	var out sample
	err := DecodeJSON("   ", &out)
	if !errors.Is(err, models.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestDecodeJSONGarbageReply(t *testing.T) {
	var out sample
	err := DecodeJSON("I could not produce JSON for that", &out)
	if !errors.Is(err, models.ErrSchemaDecode) {
		t.Errorf("expected ErrSchemaDecode, got %v", err)
	}
}
