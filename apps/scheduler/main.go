package main

import (
	"github.com/abrahamoflondon/innercircle/internal/accesskey"
	"github.com/abrahamoflondon/innercircle/internal/audit"
	"github.com/abrahamoflondon/innercircle/internal/clock"
	"github.com/abrahamoflondon/innercircle/internal/config"
	"github.com/abrahamoflondon/innercircle/internal/member"
	"github.com/abrahamoflondon/innercircle/internal/observability"
	"github.com/abrahamoflondon/innercircle/internal/ratelimit"
	"github.com/abrahamoflondon/innercircle/internal/scheduler"
	"github.com/abrahamoflondon/innercircle/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module, // job locks

		// Domain services required by scheduler
		audit.Module,
		member.Module,
		accesskey.Module,

		// No server module!
		scheduler.Module,
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
