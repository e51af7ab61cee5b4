package entities

import "testing"

func TestNewAssertionKeySeparatesFields(t *testing.T) {
	left := NewAssertionKey("D1", 0, AssertionContent{
		Subject: "a|b", SubjectType: "c", Predicate: "TREATS", Object: "x", ObjectType: "y",
	})
	right := NewAssertionKey("D1", 0, AssertionContent{
		Subject: "a", SubjectType: "b|c", Predicate: "TREATS", Object: "x", ObjectType: "y",
	})
	if left == right {
		t.Fatalf("expected distinct keys for different subject/type splits, both %s", left)
	}
}

func TestNewAssertionKeyIgnoresCaseAndPadding(t *testing.T) {
	content := AssertionContent{Subject: "Aspirin", SubjectType: "phsu", Predicate: "TREATS", Object: "headache", ObjectType: "sosy"}
	padded := AssertionContent{Subject: "  aspirin ", SubjectType: "PHSU", Predicate: "treats", Object: "Headache", ObjectType: "sosy"}
	if NewAssertionKey("D1", 2, content) != NewAssertionKey("D1", 2, padded) {
		t.Fatalf("expected cosmetic differences to share a key")
	}
	if NewAssertionKey("D1", 2, content) == NewAssertionKey("D1", 3, content) {
		t.Fatalf("expected sentence index to be part of the key")
	}
	negated := content
	negated.Negation = true
	if NewAssertionKey("D1", 2, content) == NewAssertionKey("D1", 2, negated) {
		t.Fatalf("expected negation to be part of the key")
	}
}
