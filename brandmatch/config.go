package brandmatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultConfigFile = "config.json"

// EnvPrefix prefixes every environment override read by ApplyEnv.
const EnvPrefix = "BRANDMATCH_"

// EmbedderConfig wraps the configuration for the ORT embedder and cache.
type EmbedderConfig struct {
	OrtDLL        string `json:"ortDll"`
	ModelPath     string `json:"modelPath"`
	TokenizerPath string `json:"tokenizerPath"`
	MaxSeqLen     int    `json:"maxSeqLen"`
	CacheDir      string `json:"cacheDir"`
	ModelID       string `json:"modelId"`
}

// ModelConfig binds a semantic strategy name to its embedder.
type ModelConfig struct {
	Name     string         `json:"name"`
	Enabled  bool           `json:"enabled"`
	Embedder EmbedderConfig `json:"embedder"`
}

// CorpusConfig locates the brand list.
type CorpusConfig struct {
	Path   string     `json:"path"`
	Header HeaderMode `json:"header"`
	Sheet  string     `json:"sheet,omitempty"`

	// HeaderNames replaces the header names recognised in auto mode.
	HeaderNames []string `json:"headerNames,omitempty"`
}

// SemanticConfig holds the embedding models and cosine scaling.
type SemanticConfig struct {
	Scaling CosineScaling `json:"scaling"`
	OrtDLL  string        `json:"ortDll"`
	Models  []ModelConfig `json:"models"`
}

// NGramConfig tunes the n-gram strategy.
type NGramConfig struct {
	N int `json:"n"`
}

// PhoneticConfig tunes the phonetic strategy.
type PhoneticConfig struct {
	SyllablePenalty bool    `json:"syllablePenalty"`
	PerSyllable     float64 `json:"perSyllable"`
	MinLength       int     `json:"minLength"`
}

// Config aggregates runtime settings persisted to config.json.
type Config struct {
	Threshold  float64        `json:"threshold"`
	GroupLimit int            `json:"groupLimit"`
	FlatLimit  int            `json:"flatLimit"`
	Corpus     CorpusConfig   `json:"corpus"`
	Semantic   SemanticConfig `json:"semantic"`
	NGram      NGramConfig    `json:"ngram"`
	Phonetic   PhoneticConfig `json:"phonetic"`
	// Strategies selects and orders the enabled strategies. Empty enables all.
	Strategies []string `json:"strategies,omitempty"`
}

// DefaultConfig returns the configuration used when no config.json exists.
func DefaultConfig() Config {
	cfg := Config{Threshold: DefaultThreshold}
	cfg.Phonetic.SyllablePenalty = true
	cfg.ApplyDefaults()
	return cfg
}

// DefaultModels returns the two stock sentence encoders.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{
			Name:    StrategySBERT,
			Enabled: true,
			Embedder: EmbedderConfig{
				ModelPath:     filepath.Join("models", "paraphrase-multilingual-MiniLM-L12-v2", "model.onnx"),
				TokenizerPath: filepath.Join("models", "paraphrase-multilingual-MiniLM-L12-v2", "tokenizer.json"),
				CacheDir:      filepath.Join("cache", StrategySBERT),
			},
		},
		{
			Name:    StrategyBETO,
			Enabled: true,
			Embedder: EmbedderConfig{
				ModelPath:     filepath.Join("models", "sentence_similarity_spanish_es", "model.onnx"),
				TokenizerPath: filepath.Join("models", "sentence_similarity_spanish_es", "tokenizer.json"),
				CacheDir:      filepath.Join("cache", StrategyBETO),
			},
		},
	}
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// FuseOptions returns the fusion settings carried by the configuration.
func (c Config) FuseOptions() FuseOptions {
	return FuseOptions{Threshold: c.Threshold, GroupLimit: c.GroupLimit, FlatLimit: c.FlatLimit}
}

// ApplyDefaults populates zero values with sensible defaults. A zero
// threshold is kept since it is a valid setting.
func (c *Config) ApplyDefaults() {
	c.Threshold = clampScore(c.Threshold)
	if c.GroupLimit <= 0 {
		c.GroupLimit = DefaultGroupLimit
	}
	if c.FlatLimit < 0 {
		c.FlatLimit = 0
	}
	if c.Corpus.Path == "" {
		c.Corpus.Path = filepath.Join("data", "marcas.csv")
	}
	if c.Corpus.Header == "" {
		c.Corpus.Header = HeaderAuto
	}
	if c.Semantic.Scaling == "" {
		c.Semantic.Scaling = DefaultCosineScaling
	}
	if len(c.Semantic.Models) == 0 {
		c.Semantic.Models = DefaultModels()
	}
	for i := range c.Semantic.Models {
		m := &c.Semantic.Models[i]
		if m.Embedder.OrtDLL == "" {
			m.Embedder.OrtDLL = c.Semantic.OrtDLL
		}
		if m.Embedder.MaxSeqLen == 0 {
			m.Embedder.MaxSeqLen = 128
		}
		if m.Embedder.ModelID == "" {
			m.Embedder.ModelID = m.Name
		}
	}
	if c.NGram.N <= 0 {
		c.NGram.N = DefaultNGramSize
	}
	if c.Phonetic.PerSyllable <= 0 {
		c.Phonetic.PerSyllable = DefaultSyllablePenalty
	}
	if c.Phonetic.MinLength <= 0 {
		c.Phonetic.MinLength = DefaultPhoneticMinLength
	}
}

// LoadConfig loads configuration from the given path or the default config.json.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if !bytes.Contains(data, []byte("\"threshold\"")) {
		cfg.Threshold = DefaultThreshold
	}
	if !bytes.Contains(data, []byte("\"syllablePenalty\"")) {
		cfg.Phonetic.SyllablePenalty = true
	}
	if _, err := ParseCosineScaling(string(cfg.Semantic.Scaling)); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from BRANDMATCH_* variables read through
// lookup (normally os.LookupEnv). Malformed numbers are reported and leave
// the setting untouched, as are unknown scaling names.
//
//	BRANDMATCH_CORPUS        corpus path
//	BRANDMATCH_THRESHOLD     minimum score
//	BRANDMATCH_GROUP_LIMIT   per-family cap
//	BRANDMATCH_STRATEGIES    comma separated strategy names
//	BRANDMATCH_ORT_DLL       onnxruntime shared library
//	BRANDMATCH_SCALING       direct or shifted
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	var errs []error
	if v, ok := get("CORPUS"); ok {
		c.Corpus.Path = v
	}
	if v, ok := get("THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %sTHRESHOLD: %w", EnvPrefix, err))
		} else {
			c.Threshold = clampScore(f)
		}
	}
	if v, ok := get("GROUP_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %sGROUP_LIMIT: %w", EnvPrefix, err))
		} else {
			c.GroupLimit = n
		}
	}
	if v, ok := get("STRATEGIES"); ok {
		var names []string
		for _, part := range strings.Split(v, ",") {
			if name := strings.ToLower(strings.TrimSpace(part)); name != "" {
				names = append(names, name)
			}
		}
		c.Strategies = names
	}
	if v, ok := get("ORT_DLL"); ok {
		c.Semantic.OrtDLL = v
		for i := range c.Semantic.Models {
			c.Semantic.Models[i].Embedder.OrtDLL = v
		}
	}
	if v, ok := get("SCALING"); ok {
		sc, err := ParseCosineScaling(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %sSCALING: %w", EnvPrefix, err))
		} else {
			c.Semantic.Scaling = sc
		}
	}
	c.ApplyDefaults()
	return errors.Join(errs...)
}
