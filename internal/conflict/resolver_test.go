package conflict

import (
	"context"
	"strings"
	"testing"

	"tabula/internal/models"
	"tabula/pkg/logger"
)

type trackingStore struct {
	fakeStore
	retired []string
}

func (t *trackingStore) SetRelevanceByMessageUID(ctx context.Context, userID, messageUID string, relevant bool) error {
	if !relevant {
		t.retired = append(t.retired, messageUID)
	}
	return nil
}

func TestResolveAutoRetiresOldMessage(t *testing.T) {
	store := &trackingStore{}
	resolver := NewResolver(store, nil, nil, logger.New("test", "", ""))

	c := models.Conflict{
		NewFact:  "the user prefers emacs",
		Existing: models.FactRecord{ID: "f1", MessageUID: "old-msg", Fact: "the user prefers vim"},
		Type:     models.ConflictDirect,
	}
	if err := resolver.ResolveAuto(context.Background(), "u1", "new-msg", c); err != nil {
		t.Fatalf("ResolveAuto returned error: %v", err)
	}
	if len(store.retired) != 1 || store.retired[0] != "old-msg" {
		t.Errorf("expected old-msg retired, got %v", store.retired)
	}
}

func TestQuestionListsAllChoices(t *testing.T) {
	c := models.Conflict{
		NewFact:  "the user prefers emacs",
		Existing: models.FactRecord{Fact: "the user prefers vim"},
	}
	q := Question(c)

	for _, want := range []string{
		"the user prefers vim",
		"the user prefers emacs",
		"1. Use the new information",
		"2. Keep the old information",
		"3. Both are correct",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("question missing %q:\n%s", want, q)
		}
	}
}

func TestChoiceValues(t *testing.T) {
	if KeepNew != 1 || KeepOld != 2 || KeepBoth != 3 {
		t.Errorf("choices must match the numbered question options, got %d %d %d", KeepNew, KeepOld, KeepBoth)
	}
}
