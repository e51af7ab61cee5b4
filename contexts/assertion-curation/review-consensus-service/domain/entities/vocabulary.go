package entities

import (
	"sort"
	"strings"
)

// VocabularyTerm is one whitelisted predicate or entity type.
type VocabularyTerm struct {
	Name        string
	Description string
}

// Vocabulary is the predicate/entity-type whitelist used to validate
// reviewer-authored assertions. Predicates are canonical upper-case, entity
// types lower-case; lookups are case-insensitive.
type Vocabulary struct {
	predicates  map[string]VocabularyTerm
	entityTypes map[string]VocabularyTerm
}

func NewVocabulary(predicates []VocabularyTerm, entityTypes []VocabularyTerm) Vocabulary {
	v := Vocabulary{
		predicates:  make(map[string]VocabularyTerm, len(predicates)),
		entityTypes: make(map[string]VocabularyTerm, len(entityTypes)),
	}
	for _, term := range predicates {
		name := strings.ToUpper(strings.TrimSpace(term.Name))
		if name == "" {
			continue
		}
		v.predicates[name] = VocabularyTerm{Name: name, Description: strings.TrimSpace(term.Description)}
	}
	for _, term := range entityTypes {
		name := strings.ToLower(strings.TrimSpace(term.Name))
		if name == "" {
			continue
		}
		v.entityTypes[name] = VocabularyTerm{Name: name, Description: strings.TrimSpace(term.Description)}
	}
	return v
}

func (v Vocabulary) IsPredicate(value string) bool {
	_, ok := v.predicates[strings.ToUpper(strings.TrimSpace(value))]
	return ok
}

func (v Vocabulary) IsEntityType(value string) bool {
	_, ok := v.entityTypes[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

func (v Vocabulary) Predicates() []VocabularyTerm {
	return sortedTerms(v.predicates)
}

func (v Vocabulary) EntityTypes() []VocabularyTerm {
	return sortedTerms(v.entityTypes)
}

func (v Vocabulary) Empty() bool {
	return len(v.predicates) == 0 && len(v.entityTypes) == 0
}

func sortedTerms(in map[string]VocabularyTerm) []VocabularyTerm {
	out := make([]VocabularyTerm, 0, len(in))
	for _, term := range in {
		out = append(out, term)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
