package v1

import (
	"github.com/tinoosan/fintrack/internal/auth"
	"github.com/tinoosan/fintrack/internal/storage/memory"
	"github.com/tinoosan/fintrack/internal/storage/mongochat"
	"github.com/tinoosan/fintrack/internal/storage/postgres"
)

// Compile-time interface assertions for the collaborators main wires in.
var (
	_ TokenVerifier = (*auth.Issuer)(nil)
	_ ReadyChecker  = (*memory.Store)(nil)
	_ ReadyChecker  = (*postgres.Store)(nil)
	_ ReadyChecker  = (*mongochat.Store)(nil)
)
