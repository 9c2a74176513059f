package main

import (
	"github.com/abrahamoflondon/innercircle/internal/accesskey"
	"github.com/abrahamoflondon/innercircle/internal/audit"
	"github.com/abrahamoflondon/innercircle/internal/cache"
	"github.com/abrahamoflondon/innercircle/internal/clock"
	"github.com/abrahamoflondon/innercircle/internal/config"
	"github.com/abrahamoflondon/innercircle/internal/member"
	"github.com/abrahamoflondon/innercircle/internal/migration"
	"github.com/abrahamoflondon/innercircle/internal/observability"
	"github.com/abrahamoflondon/innercircle/internal/ratelimit"
	"github.com/abrahamoflondon/innercircle/internal/scheduler"
	"github.com/abrahamoflondon/innercircle/internal/server"
	"github.com/abrahamoflondon/innercircle/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// Single binary: access API, admin API and the retention scheduler.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Functional Domains
		audit.Module,
		member.Module,
		accesskey.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		panic(err)
	}
	return node
}
