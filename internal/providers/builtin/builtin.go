// Package builtin wires every shipped provider into a registry.
package builtin

import (
	"nator/internal/providers"
	"nator/internal/providers/mock"
	"nator/internal/services/edgetts"
	"nator/internal/services/ffmpeg"
	"nator/internal/services/instagram"
	"nator/internal/services/openai"
	"nator/internal/services/r2"
	"nator/internal/services/tunnel"
)

// Register adds the mock providers and every real provider to reg.
func Register(reg *providers.Registry) {
	mock.Register(reg)
	openai.Register(reg)
	edgetts.Register(reg)
	ffmpeg.Register(reg)
	r2.Register(reg)
	tunnel.Register(reg)
	instagram.Register(reg)
}

// NewRegistry returns a registry with every builtin provider registered.
func NewRegistry(env providers.Env) *providers.Registry {
	reg := providers.NewRegistry(env)
	Register(reg)
	return reg
}
