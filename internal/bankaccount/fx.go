package bankaccount

import (
	"github.com/anoteng/regnskap/internal/bankaccount/repository"
	"github.com/anoteng/regnskap/internal/bankaccount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bankaccount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
