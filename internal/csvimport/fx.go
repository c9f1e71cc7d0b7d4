package csvimport

import (
	"github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/anoteng/regnskap/internal/csvimport/repository"
	"github.com/anoteng/regnskap/internal/csvimport/service"
	pkgrepository "github.com/anoteng/regnskap/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("csvimport.service",
	fx.Provide(repository.Provide),
	fx.Provide(pkgrepository.NewStore[domain.Mapping]),
	fx.Provide(service.New),
)
