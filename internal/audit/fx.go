package audit

import (
	"github.com/anoteng/regnskap/internal/audit/repository"
	"github.com/anoteng/regnskap/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
