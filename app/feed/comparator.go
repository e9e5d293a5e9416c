package feed

import (
	"fmt"
	"os"
	"sort"
)

// Compare parses both documents leniently and reports keys present on one side
// only plus stock and price values that differ for keys present on both.
// Values are compared as exact strings.
func Compare(schema *Schema, original, cloned []byte) (*ComparisonReport, error) {
	origDoc, err := ParseDocument(original, ParseLenient)
	if err != nil {
		return nil, fmt.Errorf("failed to load original: %w", err)
	}
	cloneDoc, err := ParseDocument(cloned, ParseLenient)
	if err != nil {
		return nil, fmt.Errorf("failed to load cloned: %w", err)
	}

	origIndex := BuildIndex(schema, origDoc)
	cloneIndex := BuildIndex(schema, cloneDoc)

	report := &ComparisonReport{
		OriginalCount: len(origIndex),
		ClonedCount:   len(cloneIndex),
		MissingKeys:   []string{},
		ExtraKeys:     []string{},
		StockDiffs:    []FieldDiff{},
		PriceDiffs:    []FieldDiff{},
	}

	for _, key := range origIndex.keys() {
		orig := origIndex[key]
		clone, ok := cloneIndex[key]
		if !ok {
			report.MissingKeys = append(report.MissingKeys, key)
			continue
		}
		if !sameValue(orig.Stock, clone.Stock) {
			report.StockDiffs = append(report.StockDiffs, FieldDiff{Key: key, Original: orig.Stock, Cloned: clone.Stock})
		}
		if !sameValue(orig.Price, clone.Price) {
			report.PriceDiffs = append(report.PriceDiffs, FieldDiff{Key: key, Original: orig.Price, Cloned: clone.Price})
		}
	}

	for _, key := range cloneIndex.keys() {
		if _, ok := origIndex[key]; !ok {
			report.ExtraKeys = append(report.ExtraKeys, key)
		}
	}

	report.TotalDiffs = len(report.StockDiffs) + len(report.PriceDiffs)
	return report, nil
}

// CompareFiles reads both files and compares them.
func CompareFiles(schema *Schema, originalPath, clonedPath string) (*ComparisonReport, error) {
	original, err := os.ReadFile(originalPath)
	if err != nil {
		return nil, fmt.Errorf("original file not found: %w", err)
	}
	cloned, err := os.ReadFile(clonedPath)
	if err != nil {
		return nil, fmt.Errorf("cloned file not found: %w", err)
	}
	return Compare(schema, original, cloned)
}

func (idx FeedIndex) keys() []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
