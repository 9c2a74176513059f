package accesskey

import (
	"github.com/abrahamoflondon/innercircle/internal/accesskey/repository"
	"github.com/abrahamoflondon/innercircle/internal/accesskey/service"
	"github.com/abrahamoflondon/innercircle/internal/keyhash"
	"github.com/abrahamoflondon/innercircle/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("accesskey.service",
	fx.Provide(repository.Provide),
	fx.Provide(keyhash.NewDefault),
	fx.Provide(func(limiter *ratelimit.UnlockLimiter) service.UnlockLimiter { return limiter }),
	fx.Provide(service.New),
)
