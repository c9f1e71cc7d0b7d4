package chaining

import (
	"github.com/anoteng/regnskap/internal/chaining/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chaining.service",
	fx.Provide(service.New),
)
