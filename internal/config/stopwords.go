package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed stopwords.yaml
var defaultStopWords []byte

type stopWordsFile struct {
	FunctionWords []string `yaml:"function_words"`
	DomainTerms   []string `yaml:"domain_terms"`
}

// LoadStopWords reads the stop-word resource at path, or the embedded list
// when path is empty.
func LoadStopWords(path string) ([]string, error) {
	raw := defaultStopWords
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read stop words %s: %w", path, err)
		}
		raw = data
	}
	return parseStopWords(raw)
}

func parseStopWords(raw []byte) ([]string, error) {
	var file stopWordsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse stop words: %w", err)
	}
	out := make([]string, 0, len(file.FunctionWords)+len(file.DomainTerms))
	out = append(out, file.FunctionWords...)
	out = append(out, file.DomainTerms...)
	if len(out) == 0 {
		return nil, fmt.Errorf("parse stop words: no entries")
	}
	return out, nil
}
