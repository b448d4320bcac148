package listener

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		channels []string
		exact    []string
		patterns []string
	}{
		{
			name:     "exact only",
			channels: []string{"jobs:done", "jobs:failed"},
			exact:    []string{"jobs:done", "jobs:failed"},
		},
		{
			name:     "patterns only",
			channels: []string{"jobs:*", "services:*"},
			patterns: []string{"jobs:*", "services:*"},
		},
		{
			name:     "mixed preserves order",
			channels: []string{"jobs:done", "jobs:*", "alerts", "alerts:*"},
			exact:    []string{"jobs:done", "alerts"},
			patterns: []string{"jobs:*", "alerts:*"},
		},
		{
			name:     "wildcard only at the end counts",
			channels: []string{"jobs:*:done"},
			exact:    []string{"jobs:*:done"},
		},
		{
			name:     "bare wildcard is a pattern",
			channels: []string{"*"},
			patterns: []string{"*"},
		},
		{
			name:     "empty",
			channels: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exact, patterns := Split(tt.channels)
			if !reflect.DeepEqual(exact, tt.exact) {
				t.Errorf("exact = %v, want %v", exact, tt.exact)
			}
			if !reflect.DeepEqual(patterns, tt.patterns) {
				t.Errorf("patterns = %v, want %v", patterns, tt.patterns)
			}
		})
	}
}

func TestRedisAddr(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"default", "", "localhost:6379"},
		{"host without port", "redis.internal", "redis.internal:6379"},
		{"host with port", "redis.internal:6380", "redis.internal:6380"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvRedisHost, tt.host)
			if got := RedisAddr(); got != tt.want {
				t.Errorf("RedisAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
