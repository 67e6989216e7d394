package logging

import (
	"testing"

	"liveclass/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LogConfig
		wantErr bool
	}{
		{"nil config", nil, false},
		{"production", &config.LogConfig{Level: "info"}, false},
		{"development", &config.LogConfig{Level: "debug", Development: true}, false},
		{"bad level", &config.LogConfig{Level: "chatty"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && logger == nil {
				t.Error("Expected a logger")
			}
		})
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) should return a usable logger")
	}
}
