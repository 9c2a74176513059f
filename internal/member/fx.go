package member

import (
	"github.com/abrahamoflondon/innercircle/internal/member/repository"
	"github.com/abrahamoflondon/innercircle/internal/member/service"
	"go.uber.org/fx"
)

var Module = fx.Module("member.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
