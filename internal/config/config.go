package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"XL_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"XL_DB_MAX_CONNS" default:"8"`

	IndexBaseURL       string  `envconfig:"XL_INDEX_BASE_URL" default:"http://127.0.0.1:8844"`
	IndexRatePerSecond float64 `envconfig:"XL_INDEX_RATE_PER_SECOND" default:"8"`
	IndexRateBurst     int     `envconfig:"XL_INDEX_RATE_BURST" default:"4"`

	MaxLinksPerArticle    int     `envconfig:"XL_MAX_LINKS_PER_ARTICLE" default:"3"`
	MaxLinksPerSection    int     `envconfig:"XL_MAX_LINKS_PER_SECTION" default:"1"`
	FairnessShare         float64 `envconfig:"XL_FAIRNESS_SHARE" default:"0.05"`
	BootstrapMinPublished int     `envconfig:"XL_BOOTSTRAP_MIN_PUBLISHED" default:"50"`
	TopKDense             int     `envconfig:"XL_TOP_K_DENSE" default:"200"`
	TopKSparse            int     `envconfig:"XL_TOP_K_SPARSE" default:"200"`
	BlendDenseWeight      float64 `envconfig:"XL_BLEND_DENSE_WEIGHT" default:"0.65"`
	BlendSparseWeight     float64 `envconfig:"XL_BLEND_SPARSE_WEIGHT" default:"0.35"`
	RetrieveKeep          int     `envconfig:"XL_RETRIEVE_KEEP" default:"250"`
	RerankKeep            int     `envconfig:"XL_RERANK_KEEP" default:"40"`
	MMRLambda             float64 `envconfig:"XL_MMR_LAMBDA" default:"0.3"`
	MMRK                  int     `envconfig:"XL_MMR_K" default:"12"`
	AnchorMinWords        int     `envconfig:"XL_ANCHOR_MIN_WORDS" default:"3"`
	AnchorMaxWords        int     `envconfig:"XL_ANCHOR_MAX_WORDS" default:"7"`

	ReservationTTLMinutes int `envconfig:"XL_RESERVATION_TTL_MINUTES" default:"15"`
	PublishWorkers        int `envconfig:"XL_PUBLISH_WORKERS" default:"2"`

	APITokenHash string `envconfig:"XL_API_TOKEN_HASH" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("XL_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("XL_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("XL_DB_MIN_CONNS (%d) cannot exceed XL_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.IndexBaseURL) == "" {
		return fmt.Errorf("XL_INDEX_BASE_URL is required")
	}
	if c.IndexRatePerSecond <= 0 {
		return fmt.Errorf("XL_INDEX_RATE_PER_SECOND must be > 0")
	}
	if c.IndexRateBurst < 1 {
		return fmt.Errorf("XL_INDEX_RATE_BURST must be >= 1")
	}
	if c.MaxLinksPerArticle < 0 {
		return fmt.Errorf("XL_MAX_LINKS_PER_ARTICLE must be >= 0")
	}
	if c.MaxLinksPerSection < 1 {
		return fmt.Errorf("XL_MAX_LINKS_PER_SECTION must be >= 1")
	}
	if c.FairnessShare <= 0 || c.FairnessShare >= 1 {
		return fmt.Errorf("XL_FAIRNESS_SHARE must be in (0,1)")
	}
	if c.BootstrapMinPublished < 0 {
		return fmt.Errorf("XL_BOOTSTRAP_MIN_PUBLISHED must be >= 0")
	}
	if c.TopKDense < 1 || c.TopKSparse < 1 {
		return fmt.Errorf("XL_TOP_K_DENSE and XL_TOP_K_SPARSE must be >= 1")
	}
	if c.BlendDenseWeight < 0 || c.BlendSparseWeight < 0 {
		return fmt.Errorf("blend weights must be >= 0")
	}
	if c.BlendDenseWeight+c.BlendSparseWeight <= 0 {
		return fmt.Errorf("at least one blend weight must be > 0")
	}
	if c.RetrieveKeep < 1 {
		return fmt.Errorf("XL_RETRIEVE_KEEP must be >= 1")
	}
	if c.RerankKeep < 1 {
		return fmt.Errorf("XL_RERANK_KEEP must be >= 1")
	}
	if c.MMRLambda < 0 || c.MMRLambda > 1 {
		return fmt.Errorf("XL_MMR_LAMBDA must be in [0,1]")
	}
	if c.MMRK < 1 {
		return fmt.Errorf("XL_MMR_K must be >= 1")
	}
	if c.AnchorMinWords < 1 || c.AnchorMaxWords < c.AnchorMinWords {
		return fmt.Errorf("anchor word bounds must satisfy 1 <= min <= max")
	}
	if c.ReservationTTLMinutes < 1 {
		return fmt.Errorf("XL_RESERVATION_TTL_MINUTES must be >= 1")
	}
	if c.PublishWorkers < 1 {
		return fmt.Errorf("XL_PUBLISH_WORKERS must be >= 1")
	}
	return nil
}
