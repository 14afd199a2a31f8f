package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "evidence-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// DepthLimits holds per-source result limits for one analysis depth.
type DepthLimits struct {
	Structured int `json:"structured" yaml:"structured" mapstructure:"structured"`
	Documents  int `json:"documents" yaml:"documents" mapstructure:"documents"`
	LiveSignal int `json:"live_signal" yaml:"live_signal" mapstructure:"live_signal"`
}

// For returns the limit for kind k.
func (d DepthLimits) For(k SourceKind) int {
	switch k {
	case SourceStructured:
		return d.Structured
	case SourceDocuments:
		return d.Documents
	case SourceLiveSignal:
		return d.LiveSignal
	}
	return 0
}

// PlannerConfig holds settings for the query planner.
type PlannerConfig struct {
	// DefaultTimeout is the per-sub-query timeout ceiling (default 2s).
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout" mapstructure:"default_timeout"`

	// LiveSignalTimeout is the shorter timeout for time-sensitive live signal
	// sub-queries (default 1s).
	LiveSignalTimeout time.Duration `json:"live_signal_timeout" yaml:"live_signal_timeout" mapstructure:"live_signal_timeout"`

	// DocumentTimeout is the longer timeout for document index sub-queries
	// (default 3s).
	DocumentTimeout time.Duration `json:"document_timeout" yaml:"document_timeout" mapstructure:"document_timeout"`

	// SignalWindow is how far back live signal sub-queries look (default 24h).
	SignalWindow time.Duration `json:"signal_window" yaml:"signal_window" mapstructure:"signal_window"`

	// MaxSubQueries caps the plan size; zero means unlimited.
	MaxSubQueries int `json:"max_sub_queries" yaml:"max_sub_queries" mapstructure:"max_sub_queries"`

	// RegistryPath optionally points at a YAML entity registry. When empty
	// the registry is loaded from the companies table.
	RegistryPath string `json:"registry_path,omitempty" yaml:"registry_path,omitempty" mapstructure:"registry_path"`

	// Depths maps each analysis depth to per-source limits.
	Depths map[Depth]DepthLimits `json:"depths" yaml:"depths" mapstructure:"depths"`
}

// RetrievalConfig holds settings for the candidate retriever and adapter cache.
type RetrievalConfig struct {
	// MaxConcurrency limits in-flight sub-queries; zero means one goroutine
	// per sub-query.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// CacheTTL is the lifetime of cached adapter responses (default 30s).
	// Zero disables caching.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// RankingConfig holds the tunable coefficients of the relevance model.
type RankingConfig struct {
	// MaxResults is K, the evidence set bound (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// MinResults is the survivor count below which an evidence set is
	// flagged low confidence (default 3).
	MinResults int `json:"min_results" yaml:"min_results" mapstructure:"min_results"`

	// DedupThreshold is the fingerprint similarity at which two candidates
	// are treated as the same fact (default 0.8).
	DedupThreshold float64 `json:"dedup_threshold" yaml:"dedup_threshold" mapstructure:"dedup_threshold"`

	// Half-lives of the recency decay per source kind.
	StructuredHalfLife time.Duration `json:"structured_half_life" yaml:"structured_half_life" mapstructure:"structured_half_life"`
	DocumentHalfLife   time.Duration `json:"document_half_life" yaml:"document_half_life" mapstructure:"document_half_life"`
	LiveSignalHalfLife time.Duration `json:"live_signal_half_life" yaml:"live_signal_half_life" mapstructure:"live_signal_half_life"`

	// UndatedRecency is the recency factor for candidates without a timestamp.
	UndatedRecency float64 `json:"undated_recency" yaml:"undated_recency" mapstructure:"undated_recency"`
}

// HalfLife returns the recency half-life for kind k.
func (c RankingConfig) HalfLife(k SourceKind) time.Duration {
	switch k {
	case SourceStructured:
		return c.StructuredHalfLife
	case SourceDocuments:
		return c.DocumentHalfLife
	default:
		return c.LiveSignalHalfLife
	}
}

// MemoryConfig holds settings for client context memory.
type MemoryConfig struct {
	// TopicWindow bounds the recent-topic window (default 10).
	TopicWindow int `json:"topic_window" yaml:"topic_window" mapstructure:"topic_window"`

	// TopicRetention drops topics older than this; zero keeps them until
	// evicted by the window (default 90 days).
	TopicRetention time.Duration `json:"topic_retention" yaml:"topic_retention" mapstructure:"topic_retention"`

	// LearningRate is the EMA coefficient of preference nudges (default 0.2).
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" mapstructure:"learning_rate"`

	// EngagementThreshold is the minimum engaged score that counts as a
	// positive signal for a source (default 0.5).
	EngagementThreshold float64 `json:"engagement_threshold" yaml:"engagement_threshold" mapstructure:"engagement_threshold"`

	// StoreTimeout bounds each backing store call (default 500ms).
	StoreTimeout time.Duration `json:"store_timeout" yaml:"store_timeout" mapstructure:"store_timeout"`

	// Shards is the number of lock stripes serializing per-client updates
	// (default 32).
	Shards int `json:"shards" yaml:"shards" mapstructure:"shards"`
}

// StoreConfig holds settings for the SQLite database.
type StoreConfig struct {
	// DataDir is the directory containing the database file.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
}

// SignalsConfig holds settings for the live signal feed.
type SignalsConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// FeedURL is the base URL of the signal feed. Empty disables the
	// live signal adapter.
	FeedURL string `json:"feed_url" yaml:"feed_url" mapstructure:"feed_url"`

	// APIKey authenticates against the feed.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retries on HTTP 429/503 (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ServerConfig holds settings for the HTTP wrapper.
type ServerConfig struct {
	Addr           string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
}

// EngineConfig groups all component configurations.
type EngineConfig struct {
	Planner   PlannerConfig   `json:"planner" yaml:"planner" mapstructure:"planner"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	Ranking   RankingConfig   `json:"ranking" yaml:"ranking" mapstructure:"ranking"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory" mapstructure:"memory"`
	Store     StoreConfig     `json:"store" yaml:"store" mapstructure:"store"`
	Signals   SignalsConfig   `json:"signals" yaml:"signals" mapstructure:"signals"`
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
}

// DefaultDepths returns the per-source limits for each analysis depth.
func DefaultDepths() map[Depth]DepthLimits {
	return map[Depth]DepthLimits{
		DepthQuick:         {Structured: 5, Documents: 2, LiveSignal: 3},
		DepthStandard:      {Structured: 10, Documents: 3, LiveSignal: 5},
		DepthComprehensive: {Structured: 20, Documents: 5, LiveSignal: 10},
	}
}

// DefaultEngineConfig returns the configuration used when no file overrides it.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Planner: PlannerConfig{
			DefaultTimeout:    2 * time.Second,
			LiveSignalTimeout: 1 * time.Second,
			DocumentTimeout:   3 * time.Second,
			SignalWindow:      24 * time.Hour,
			Depths:            DefaultDepths(),
		},
		Retrieval: RetrievalConfig{
			CacheTTL: 30 * time.Second,
		},
		Ranking: RankingConfig{
			MaxResults:         20,
			MinResults:         3,
			DedupThreshold:     0.8,
			StructuredHalfLife: 365 * 24 * time.Hour,
			DocumentHalfLife:   90 * 24 * time.Hour,
			LiveSignalHalfLife: 6 * time.Hour,
			UndatedRecency:     0.5,
		},
		Memory: MemoryConfig{
			TopicWindow:         10,
			TopicRetention:      90 * 24 * time.Hour,
			LearningRate:        0.2,
			EngagementThreshold: 0.5,
			StoreTimeout:        500 * time.Millisecond,
			Shards:              32,
		},
		Store: StoreConfig{
			DataDir: "data",
		},
		Signals: SignalsConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   5 * time.Second,
				UserAgent: "evidence-engine/0.1",
			},
			MaxRetries: 2,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 10 * time.Second,
		},
	}
}
