package graphrag

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/classify"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/extraction"
	"github.com/poiesic/graphrag/fusion"
	"github.com/poiesic/graphrag/ingestion"
	"github.com/poiesic/graphrag/reembed"
	"github.com/poiesic/graphrag/resolve"
	"github.com/poiesic/graphrag/search"
	"gopkg.in/yaml.v3"
)

// validate caches struct info across calls.
var validate = validator.New()

// Config is the engine configuration. Zero sections take the defaults of
// DefaultConfig when loaded with LoadConfig.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string `yaml:"path" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"in_memory"`

	// PostgresDSN moves chunks and embeddings to Postgres with pgvector.
	// The graph stays in badger.
	PostgresDSN string `yaml:"postgres_dsn"`

	AI          ai.Config         `yaml:"ai"`
	Resolution  ResolutionConfig  `yaml:"resolution"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Fusion      FusionConfig      `yaml:"fusion"`
	Maintenance reembed.Config    `yaml:"maintenance"`
}

// ResolutionConfig tunes entity resolution.
type ResolutionConfig struct {
	Threshold     float64 `yaml:"threshold" validate:"gt=0,lte=1"`
	FullScanLimit int     `yaml:"full_scan_limit" validate:"gte=0"`
	// DictionaryPath replaces the built-in alias dictionary.
	DictionaryPath string `yaml:"dictionary_path" validate:"omitempty,file"`
}

// ExtractionConfig tunes the entity extractor.
type ExtractionConfig struct {
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	MinConfidence     float64       `yaml:"min_confidence" validate:"gte=0,lte=1"`
	DefaultConfidence float64       `yaml:"default_confidence" validate:"gte=0,lte=1"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	// PoolSize is the number of chunks processed at once; 0 picks NumCPU/2.
	PoolSize     int           `yaml:"pool_size" validate:"gte=0"`
	EmbedTimeout time.Duration `yaml:"embed_timeout" validate:"gt=0"`
}

// RetrievalConfig tunes query answering.
type RetrievalConfig struct {
	TopKVector      int           `yaml:"top_k_vector" validate:"gte=1"`
	TopKGraph       int           `yaml:"top_k_graph" validate:"gte=1"`
	MaxContextSize  int           `yaml:"max_context_size" validate:"gte=1"`
	MaxHops         int           `yaml:"max_hops" validate:"gte=1,lte=4"`
	VectorTimeout   time.Duration `yaml:"vector_timeout" validate:"gt=0"`
	GraphTimeout    time.Duration `yaml:"graph_timeout" validate:"gt=0"`
	CacheEntries    int           `yaml:"cache_entries" validate:"gte=0"`
	VectorExpansion bool          `yaml:"vector_expansion"`
	// Spotter picks how query entities are found: "ngram" or "extractor".
	Spotter string `yaml:"spotter" validate:"oneof=ngram extractor"`
}

// FusionConfig tunes hybrid fusion.
type FusionConfig struct {
	K     float64 `yaml:"k" validate:"gt=0"`
	Bonus float64 `yaml:"bonus" validate:"gte=1"`
	// Weights overrides per query type, keyed by type name.
	Weights map[string]core.Weights `yaml:"weights"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Path: "graphrag.db",
		AI:   *ai.DefaultConfig(),
		Resolution: ResolutionConfig{
			Threshold:     resolve.DefaultThreshold,
			FullScanLimit: resolve.DefaultFullScanLimit,
		},
		Extraction: ExtractionConfig{
			Timeout:           extraction.DefaultTimeout,
			MinConfidence:     extraction.DefaultMinConfidence,
			DefaultConfidence: extraction.DefaultConfidence,
		},
		Ingestion: IngestionConfig{
			EmbedTimeout: ingestion.DefaultEmbedTimeout,
		},
		Retrieval: RetrievalConfig{
			TopKVector:     search.DefaultTopKVector,
			TopKGraph:      search.DefaultTopKGraph,
			MaxContextSize: search.DefaultMaxContextSize,
			MaxHops:        search.DefaultMaxHops,
			VectorTimeout:  search.DefaultSourceTimeout,
			GraphTimeout:   search.DefaultSourceTimeout,
			CacheEntries:   search.DefaultCacheEntries,
			Spotter:        "ngram",
		},
		Fusion: FusionConfig{
			K:     fusion.DefaultK,
			Bonus: fusion.DefaultBonus,
		},
		Maintenance: *reembed.DefaultConfig(),
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section, including the AI settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, e := range verrs {
				msgs[i] = fmt.Sprintf("%s: rule %q (value: %v)", e.Namespace(), e.Tag(), e.Value())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if _, err := c.Fusion.weightTable(); err != nil {
		return err
	}
	return nil
}

// weightTable parses the per-type weight overrides.
func (f FusionConfig) weightTable() (classify.WeightTable, error) {
	table := make(classify.WeightTable, len(f.Weights))
	for name, w := range f.Weights {
		qt, err := classify.ParseQueryType(name)
		if err != nil {
			return nil, fmt.Errorf("invalid config: fusion weights: %w", err)
		}
		if w.Vector < 0 || w.Graph < 0 {
			return nil, fmt.Errorf("invalid config: fusion weights for %s must not be negative", qt)
		}
		table[qt] = w
	}
	return table, nil
}
