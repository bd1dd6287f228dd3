package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultDataDir             = "./data"
	defaultLogLevel            = "info"
	defaultChunkSize           = 1000
	defaultChunkOverlap        = 100
	defaultSummaryChunkSize    = 200000
	defaultSummaryChunkOverlap = 5000
	defaultSummarySafeSize     = 200000
	defaultTopN                = 15
	defaultEmbedBatchSize      = 100
	defaultOCRInterval         = 3100 * time.Millisecond
	defaultCollection          = "books"
	defaultVectorBackend       = "chromem"
	defaultDimensions          = 768
	defaultTTSModel            = "tts-1"
	defaultTTSVoice            = "nova"
)

type Config struct {
	DataDir      string         `yaml:"data_dir"`
	LogLevel     string         `yaml:"log_level"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	OCR          OCRConfig      `yaml:"ocr"`
	TTS          TTSConfig      `yaml:"tts"`
	Vector       VectorConfig   `yaml:"vector"`
	Database     DatabaseConfig `yaml:"database"`
	RAG          RAGConfig      `yaml:"rag"`
	Cache        CacheConfig    `yaml:"cache"`
}

// LLMConfig describes one model endpoint. Provider is one of openai, ollama
// or anthropic (generation only).
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Key      string `yaml:"key"`
}

type OCRConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Key      string        `yaml:"key"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TTSConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Voice   string `yaml:"voice"`
	Key     string `yaml:"key"`
}

// VectorConfig selects the index backend: chromem, pgvector or memory.
type VectorConfig struct {
	Backend       string `yaml:"backend"`
	Collection    string `yaml:"collection"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	Driver     string        `yaml:"driver"` // pgdriver or pq
	URL        string        `yaml:"url"`
	Password   string        `yaml:"password"`
	Dimensions int           `yaml:"dimensions"`
	Debug      bool          `yaml:"debug"`
	Wait       time.Duration `yaml:"wait"`
}

type RAGConfig struct {
	ChunkSize           int `yaml:"chunk_size"`
	ChunkOverlap        int `yaml:"chunk_overlap"`
	SummaryChunkSize    int `yaml:"summary_chunk_size"`
	SummaryChunkOverlap int `yaml:"summary_chunk_overlap"`
	SummarySafeSize     int `yaml:"summary_safe_size"`
	TopN                int `yaml:"top_n"`
	EmbedBatchSize      int `yaml:"embed_batch_size"`
}

// CacheConfig configures the answer cache. An empty RedisURL keeps answers in memory.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoadConfig reads a .env file if present, expands ${VAR} references in the
// YAML document and fills defaults for anything left unset.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "ollama"
	}
	if c.InferenceLLM.Provider == "" {
		c.InferenceLLM.Provider = "openai"
	}
	if c.OCR.Provider == "" {
		c.OCR.Provider = "mistral"
	}
	if c.OCR.Interval == 0 {
		c.OCR.Interval = defaultOCRInterval
	}
	if c.TTS.Model == "" {
		c.TTS.Model = defaultTTSModel
	}
	if c.TTS.Voice == "" {
		c.TTS.Voice = defaultTTSVoice
	}
	if c.Vector.Backend == "" {
		c.Vector.Backend = defaultVectorBackend
	}
	if c.Vector.Collection == "" {
		c.Vector.Collection = defaultCollection
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgdriver"
	}
	if c.Database.Dimensions == 0 {
		c.Database.Dimensions = defaultDimensions
	}
	if c.Database.Wait == 0 {
		c.Database.Wait = 30 * time.Second
	}

	// chunk sizes go together; a half-configured profile falls back entirely
	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap <= 0 {
		c.RAG.ChunkSize = defaultChunkSize
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if c.RAG.SummaryChunkSize <= 0 || c.RAG.SummaryChunkOverlap <= 0 {
		c.RAG.SummaryChunkSize = defaultSummaryChunkSize
		c.RAG.SummaryChunkOverlap = defaultSummaryChunkOverlap
	}
	if c.RAG.SummarySafeSize <= 0 {
		c.RAG.SummarySafeSize = defaultSummarySafeSize
	}
	if c.RAG.TopN <= 0 {
		c.RAG.TopN = defaultTopN
	}
	if c.RAG.EmbedBatchSize <= 0 {
		c.RAG.EmbedBatchSize = defaultEmbedBatchSize
	}
}
