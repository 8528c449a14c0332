package docker

import (
	"time"
)

// DefaultImage is the Node.js image pens run in.
const DefaultImage = "node:22-alpine"

// Config holds the configuration for Docker execution.
type Config struct {
	// Image is the Docker image to use for execution.
	Image string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Timeout is the maximum amount of time a run can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
}

// DefaultConfig provides sensible defaults for a Node.js sandbox.
func DefaultConfig() Config {
	return Config{
		Image: DefaultImage,
		// node needs more headroom than a bare interpreter
		MemoryLimit: 192 * 1024 * 1024,
		CPULimit:    0.5,
		Timeout:     5 * time.Second,
		PoolSize:    3,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Image == "" {
		c.Image = def.Image
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = def.MemoryLimit
	}
	if c.CPULimit <= 0 {
		c.CPULimit = def.CPULimit
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	return c
}
