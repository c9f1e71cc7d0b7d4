package banksync

import (
	"github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/banksync/provider"
	"github.com/anoteng/regnskap/internal/banksync/repository"
	"github.com/anoteng/regnskap/internal/banksync/sealer"
	"github.com/anoteng/regnskap/internal/banksync/service"
	"github.com/anoteng/regnskap/internal/synclock"
	"go.uber.org/fx"
)

var Module = fx.Module("banksync.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		provider.Provide,
		func(r *provider.Registry) domain.ClientResolver { return r },
	),
	fx.Provide(sealer.Provide),
	fx.Provide(func(l synclock.Locker) domain.Locker { return l }),
	fx.Provide(service.New),
)
