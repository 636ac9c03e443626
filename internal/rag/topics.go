package rag

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultTopicsYAML []byte

type topicFile struct {
	Keywords map[string][]string `yaml:"keywords"`
}

type topicEntry struct {
	keyword string
	topics  []string
}

// TopicTable maps known phrases to topic tags. It is read-only after
// construction and safe for concurrent use.
type TopicTable struct {
	entries []topicEntry
}

// DefaultTopicTable returns the built-in table.
func DefaultTopicTable() *TopicTable {
	t, err := ParseTopicTable(defaultTopicsYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in topic table is invalid: %v", err))
	}
	return t
}

// LoadTopicTable reads a YAML table from path, or returns the built-in table
// when path is empty.
func LoadTopicTable(path string) (*TopicTable, error) {
	if path == "" {
		return DefaultTopicTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic table: %w", err)
	}
	return ParseTopicTable(data)
}

func ParseTopicTable(data []byte) (*TopicTable, error) {
	var f topicFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse topic table: %w", err)
	}
	if len(f.Keywords) == 0 {
		return nil, fmt.Errorf("parse topic table: no keywords defined")
	}

	t := &TopicTable{entries: make([]topicEntry, 0, len(f.Keywords))}
	for kw, topics := range f.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			return nil, fmt.Errorf("parse topic table: empty keyword")
		}
		norm := NormalizeTopics(topics)
		if len(norm) == 0 {
			return nil, fmt.Errorf("parse topic table: keyword %q has no topics", kw)
		}
		t.entries = append(t.entries, topicEntry{keyword: kw, topics: norm})
	}
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].keyword < t.entries[j].keyword })
	return t, nil
}

// Extract returns the sorted set of topics of every keyword that appears in
// text, case-insensitively. Nil when nothing matches.
func (t *TopicTable) Extract(text string) []string {
	s := strings.ToLower(text)
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var found []string
	for _, e := range t.entries {
		if strings.Contains(s, e.keyword) {
			found = append(found, e.topics...)
		}
	}
	if len(found) == 0 {
		return nil
	}
	return NormalizeTopics(found)
}

// Len is the number of keywords.
func (t *TopicTable) Len() int {
	return len(t.entries)
}
