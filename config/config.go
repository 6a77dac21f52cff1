// Package config defines the orchestrator's runtime configuration and loads
// it from YAML, matching every option named in spec §6.3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SynthesisMode controls whether the Manager Orchestrator synthesizes a
// final answer from multi-step plan outputs or returns the last step's
// answer verbatim.
type SynthesisMode string

const (
	// SynthesisAlways always invokes a synthesis LLM call, even for
	// single-step plans.
	SynthesisAlways SynthesisMode = "always"
	// SynthesisVerbatim always returns the last step's answer unmodified.
	SynthesisVerbatim SynthesisMode = "verbatim"
	// SynthesisAuto synthesizes only when more than one step ran. This is
	// the default, resolving the open question in spec §9.
	SynthesisAuto SynthesisMode = "auto"
)

// Config is the orchestrator's top-level configuration. Zero values are
// replaced by Defaults during Load.
type Config struct {
	// MaxConcurrentTasks bounds the Scheduler's global semaphore.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`
	// RetrievalFanout bounds parallel store queries in query_multi.
	RetrievalFanout int `yaml:"retrieval_fanout"`
	// RetrievalCacheTTL is the TTL for cached retrieval results.
	RetrievalCacheTTL time.Duration `yaml:"retrieval_cache_ttl_sec"`
	// LLMCacheCapacity bounds the LLM Gateway's LRU response cache.
	LLMCacheCapacity int `yaml:"llm_cache_capacity"`
	// TaskTimeout bounds a single task's wall-clock execution.
	TaskTimeout time.Duration `yaml:"task_timeout_sec"`
	// LLMTimeout bounds a single LLM Gateway call.
	LLMTimeout time.Duration `yaml:"llm_timeout_sec"`
	// RetryCeiling bounds Quality Controller retry-with-feedback attempts.
	RetryCeiling int `yaml:"retry_ceiling"`
	// EventSubscriberBuffer bounds the Event Bus's per-subscriber queue.
	EventSubscriberBuffer int `yaml:"event_subscriber_buffer"`
	// WorkspaceRoot is the absolute path all user-derived paths must resolve under.
	WorkspaceRoot string `yaml:"workspace_root"`
	// SchedulerRetryBound bounds Scheduler-level task re-enqueues on retryable failure.
	SchedulerRetryBound int `yaml:"scheduler_retry_bound"`
	// Synthesis controls multi-step plan result synthesis (spec §9 open question).
	Synthesis SynthesisMode `yaml:"synthesis_mode"`
}

// Defaults returns a Config with every option set to the default named in
// spec §6.3.
func Defaults() Config {
	return Config{
		MaxConcurrentTasks:    5,
		RetrievalFanout:       8,
		RetrievalCacheTTL:     60 * time.Second,
		LLMCacheCapacity:      1024,
		TaskTimeout:           60 * time.Second,
		LLMTimeout:            30 * time.Second,
		RetryCeiling:          2,
		EventSubscriberBuffer: 256,
		WorkspaceRoot:         "/var/lib/orchestrator",
		SchedulerRetryBound:   2,
		Synthesis:             SynthesisAuto,
	}
}

// Load reads a YAML configuration file and overlays it onto Defaults. Keys
// absent from the file keep their defaults. For counts and for durations
// expressed in seconds on disk, Load treats zero as "unset";
// retry_ceiling and scheduler_retry_bound accept an explicit 0.
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var onDisk struct {
		MaxConcurrentTasks    int    `yaml:"max_concurrent_tasks"`
		RetrievalFanout       int    `yaml:"retrieval_fanout"`
		RetrievalCacheTTLSec  int    `yaml:"retrieval_cache_ttl_sec"`
		LLMCacheCapacity      int    `yaml:"llm_cache_capacity"`
		TaskTimeoutSec        int    `yaml:"task_timeout_sec"`
		LLMTimeoutSec         int    `yaml:"llm_timeout_sec"`
		RetryCeiling          *int   `yaml:"retry_ceiling"`
		EventSubscriberBuffer int    `yaml:"event_subscriber_buffer"`
		WorkspaceRoot         string `yaml:"workspace_root"`
		SchedulerRetryBound   *int   `yaml:"scheduler_retry_bound"`
		SynthesisMode         string `yaml:"synthesis_mode"`
	}
	if err := yaml.Unmarshal(raw, &onDisk); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if onDisk.MaxConcurrentTasks > 0 {
		cfg.MaxConcurrentTasks = onDisk.MaxConcurrentTasks
	}
	if onDisk.RetrievalFanout > 0 {
		cfg.RetrievalFanout = onDisk.RetrievalFanout
	}
	if onDisk.RetrievalCacheTTLSec > 0 {
		cfg.RetrievalCacheTTL = time.Duration(onDisk.RetrievalCacheTTLSec) * time.Second
	}
	if onDisk.LLMCacheCapacity > 0 {
		cfg.LLMCacheCapacity = onDisk.LLMCacheCapacity
	}
	if onDisk.TaskTimeoutSec > 0 {
		cfg.TaskTimeout = time.Duration(onDisk.TaskTimeoutSec) * time.Second
	}
	if onDisk.LLMTimeoutSec > 0 {
		cfg.LLMTimeout = time.Duration(onDisk.LLMTimeoutSec) * time.Second
	}
	if onDisk.RetryCeiling != nil && *onDisk.RetryCeiling >= 0 {
		cfg.RetryCeiling = *onDisk.RetryCeiling
	}
	if onDisk.EventSubscriberBuffer > 0 {
		cfg.EventSubscriberBuffer = onDisk.EventSubscriberBuffer
	}
	if onDisk.WorkspaceRoot != "" {
		cfg.WorkspaceRoot = onDisk.WorkspaceRoot
	}
	if onDisk.SchedulerRetryBound != nil && *onDisk.SchedulerRetryBound >= 0 {
		cfg.SchedulerRetryBound = *onDisk.SchedulerRetryBound
	}
	if onDisk.SynthesisMode != "" {
		cfg.Synthesis = SynthesisMode(onDisk.SynthesisMode)
	}
	return cfg, nil
}
