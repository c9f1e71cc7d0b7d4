package account

import (
	"github.com/anoteng/regnskap/internal/account/repository"
	"github.com/anoteng/regnskap/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
