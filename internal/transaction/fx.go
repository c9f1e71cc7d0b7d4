package transaction

import (
	"github.com/anoteng/regnskap/internal/transaction/repository"
	"github.com/anoteng/regnskap/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
