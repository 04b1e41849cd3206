// Package config collects the runtime settings of a collection run.
// Credentials come from the environment; tunables come from flags with
// the defaults defined here.
package config

import (
	"errors"
	"os"
	"time"
)

// API holds credentials and endpoints for the remote services.
type API struct {
	MetasearchAPIKey   string
	MetasearchEndpoint string
	LLMAPIKey          string
	LLMBaseURL         string
	AuthorityModel     string
	RelevanceModel     string
}

// APIFromEnv reads service credentials from the environment.
func APIFromEnv() API {
	return API{
		MetasearchAPIKey:   os.Getenv("METASEARCH_API_KEY"),
		MetasearchEndpoint: os.Getenv("METASEARCH_ENDPOINT"),
		LLMAPIKey:          os.Getenv("DIRECT_LLM_API_KEY"),
		LLMBaseURL:         os.Getenv("DIRECT_LLM_BASE_URL"),
		AuthorityModel:     os.Getenv("AUTHORITY_MODEL"),
		RelevanceModel:     os.Getenv("RELEVANCE_MODEL"),
	}
}

// Validate reports the first missing required credential.
func (a API) Validate() error {
	switch {
	case a.MetasearchAPIKey == "":
		return errors.New("METASEARCH_API_KEY is not set")
	case a.MetasearchEndpoint == "":
		return errors.New("METASEARCH_ENDPOINT is not set")
	case a.LLMAPIKey == "":
		return errors.New("DIRECT_LLM_API_KEY is not set")
	case a.LLMBaseURL == "":
		return errors.New("DIRECT_LLM_BASE_URL is not set")
	case a.AuthorityModel == "":
		return errors.New("AUTHORITY_MODEL is not set")
	}
	// RelevanceModel falls back to AuthorityModel when unset.
	return nil
}

// Pipeline holds the tunables of one run.
type Pipeline struct {
	Date        string
	InputPath   string
	OutputDir   string
	Format      string
	FaillogDB   string
	PostgresDSN string

	TopK        int
	MaxWorkers  int
	SearchRPS   float64
	ScoreRPS    float64

	AuthorityThreshold   int
	RelevanceThreshold   int
	FilterAuthorityScore int
	FilterRelevanceScore int

	CheckpointInterval int
	CheckpointMirror   string
	FreshStart         bool
	SkipBadBatches     bool

	MetricsPort int
}

// DefaultPipeline returns the standard tunables for a daily run.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Format:               "csv",
		TopK:                 10,
		MaxWorkers:           8,
		SearchRPS:            5,
		ScoreRPS:             10,
		AuthorityThreshold:   2,
		RelevanceThreshold:   1,
		FilterAuthorityScore: 4,
		FilterRelevanceScore: 2,
		CheckpointInterval:   20,
	}
}

// Validate checks the tunables for obvious misconfiguration.
func (p Pipeline) Validate() error {
	switch {
	case p.Date == "":
		return errors.New("run date is required")
	case p.InputPath == "":
		return errors.New("input path is required")
	case p.OutputDir == "":
		return errors.New("output directory is required")
	case p.TopK <= 0:
		return errors.New("topk must be positive")
	case p.MaxWorkers <= 0:
		return errors.New("workers must be positive")
	}
	return nil
}

// DefaultDate returns today's run date in the batch naming convention.
func DefaultDate() string {
	return time.Now().UTC().Format("20060102")
}
