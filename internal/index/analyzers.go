package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/es"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/analysis/lang/it"
	"github.com/blevesearch/bleve/v2/analysis/lang/pt"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/feedtools/feedindex/internal/config"
	"github.com/feedtools/feedindex/internal/feed"
)

// languageAnalyzers maps primary language subtags to the Bleve analyzer
// registered for that language.
var languageAnalyzers = map[string]string{
	"en": en.AnalyzerName,
	"de": de.AnalyzerName,
	"es": es.AnalyzerName,
	"fr": fr.AnalyzerName,
	"it": it.AnalyzerName,
	"pt": pt.AnalyzerName,
}

// analyzerForLanguage returns the analyzer name for a language,
// falling back to the standard analyzer.
func analyzerForLanguage(lang string) string {
	if name, ok := languageAnalyzers[lang]; ok {
		return name
	}
	return standard.Name
}

// buildIndexMapping creates the index mapping. Each configured language
// gets its own document mapping whose text fields use that language's
// analyzer; a document's Lang field selects the mapping at index time.
// The analyzer is therefore a per-document decision, not writer state.
func buildIndexMapping(cfg *config.Config) (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	m.TypeField = feed.FieldLang

	defaultLang := cfg.Index.DefaultLanguage
	if _, ok := languageAnalyzers[defaultLang]; !ok {
		return nil, fmt.Errorf("no analyzer for default language %q", defaultLang)
	}
	m.DefaultAnalyzer = analyzerForLanguage(defaultLang)
	m.DefaultMapping = documentMapping(defaultLang)

	for _, lang := range cfg.Index.Languages {
		if lang == defaultLang {
			continue
		}
		m.AddDocumentMapping(lang, documentMapping(lang))
	}

	return m, nil
}

// documentMapping builds the per-language document mapping.
// Link and feed are exact-match keyword fields so they can serve as
// delete predicates; title and content go through the language analyzer.
func documentMapping(lang string) *mapping.DocumentMapping {
	dm := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = analyzerForLanguage(lang)
	dm.AddFieldMappingsAt(feed.FieldTitle, text)
	dm.AddFieldMappingsAt(feed.FieldContent, text)

	exact := bleve.NewKeywordFieldMapping()
	exact.IncludeInAll = false
	dm.AddFieldMappingsAt(feed.FieldLink, exact)
	dm.AddFieldMappingsAt(feed.FieldFeed, exact)
	dm.AddFieldMappingsAt(feed.FieldLang, exact)

	published := bleve.NewDateTimeFieldMapping()
	published.IncludeInAll = false
	dm.AddFieldMappingsAt("published", published)

	return dm
}
