package memory

import (
	"github.com/tinoosan/fintrack/internal/service/assistant"
	"github.com/tinoosan/fintrack/internal/service/banksync"
	"github.com/tinoosan/fintrack/internal/service/category"
	"github.com/tinoosan/fintrack/internal/service/goal"
	"github.com/tinoosan/fintrack/internal/service/portfolio"
	"github.com/tinoosan/fintrack/internal/service/transaction"
	"github.com/tinoosan/fintrack/internal/service/user"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ user.Repo           = (*Store)(nil)
	_ user.Writer         = (*Store)(nil)
	_ category.Repo       = (*Store)(nil)
	_ category.Writer     = (*Store)(nil)
	_ transaction.Repo    = (*Store)(nil)
	_ transaction.Writer  = (*Store)(nil)
	_ portfolio.Repo      = (*Store)(nil)
	_ portfolio.Writer    = (*Store)(nil)
	_ goal.Repo           = (*Store)(nil)
	_ goal.Writer         = (*Store)(nil)
	_ banksync.Repo       = (*Store)(nil)
	_ assistant.ChatStore = (*Store)(nil)
)
