package fx

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/videre-project/MTGOBot/internal/api"
	"github.com/videre-project/MTGOBot/internal/composite"
	"github.com/videre-project/MTGOBot/internal/config"
	"github.com/videre-project/MTGOBot/internal/database"
	"github.com/videre-project/MTGOBot/internal/logger"
	"github.com/videre-project/MTGOBot/internal/mtgo"
	"github.com/videre-project/MTGOBot/internal/queue"
	"github.com/videre-project/MTGOBot/internal/repository"
	"github.com/videre-project/MTGOBot/internal/server"
	"github.com/videre-project/MTGOBot/internal/service"
)

func ProvideEventSource(cfg *config.Config, log zerolog.Logger) mtgo.EventSource {
	return mtgo.NewBridgeClient(cfg.BridgeURL, log)
}

func ProvideStore(store *repository.Store) queue.Store {
	return store
}

func ProvideBuilderFactory(decklists *api.DecklistClient, log zerolog.Logger) queue.BuilderFactory {
	return func() *composite.Builder {
		return composite.NewBuilder(decklists, log)
	}
}

func ProvideClassificationFetcher(goldfish *api.GoldfishClient) service.ClassificationFetcher {
	return goldfish
}

func ProvideArchetypeStore(store *repository.Store) service.ArchetypeStore {
	return store
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// store
	fx.Provide(repository.NewStore),
	fx.Provide(ProvideStore),
	fx.Provide(ProvideArchetypeStore),
	// live client bridge
	fx.Provide(ProvideEventSource),
	// fetchers
	fx.Provide(api.NewDecklistClient),
	fx.Provide(api.NewGoldfishClient),
	fx.Provide(ProvideClassificationFetcher),
	fx.Provide(ProvideBuilderFactory),
	// pipeline
	fx.Provide(queue.NewEventQueue),
	fx.Provide(service.NewArchetypeMatcher),
	fx.Provide(service.NewWorker),
	// operator surface
	fx.Provide(server.NewStatusServer),
)
