package audit

import (
	"github.com/abrahamoflondon/innercircle/internal/audit/repository"
	"github.com/abrahamoflondon/innercircle/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
