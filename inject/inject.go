package inject

import (
	"context"
	"fmt"
	"net/http"

	"github.com/samber/do"
	"go.uber.org/zap"

	"imagegen/config"
	"imagegen/filestore"
	"imagegen/handlers"
	"imagegen/metrics"
	"imagegen/middleware"
	"imagegen/providers"
	"imagegen/retention"
)

const namespace = "imagegen"

func Setup(ctx context.Context, cfg *config.Config, logger *zap.Logger) *do.Injector {
	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})

	do.ProvideValue[*config.Config](injector, cfg)
	do.ProvideValue[*zap.Logger](injector, logger)

	do.Provide[*metrics.Collector](injector, func(i *do.Injector) (*metrics.Collector, error) {
		return metrics.NewCollector(namespace, do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide[*filestore.Store](injector, func(i *do.Injector) (*filestore.Store, error) {
		storage := do.MustInvoke[*config.Config](i).Storage
		return filestore.New(filestore.Options{
			UploadDir:         storage.UploadDir,
			ResultDir:         storage.ResultDir,
			AllowedExtensions: storage.AllowedExtensions,
			MaxFileSize:       storage.MaxFileSize,
			Recorder:          do.MustInvoke[*metrics.Collector](i),
		}, do.MustInvoke[*zap.Logger](i))
	})

	do.ProvideNamed[providers.ImageGenerator](injector, string(providers.KindGemini), func(i *do.Injector) (providers.ImageGenerator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		if cfg.APIKeys.Gemini == "" {
			log.Warn("GEMINI_API_KEY is not set, the gemini model is disabled")
			return nil, nil
		}
		return providers.NewGeminiProvider(ctx, providers.GeminiConfig{
			APIKey:            cfg.APIKeys.Gemini,
			Model:             cfg.Vendors.GeminiModel,
			BaseURL:           cfg.Vendors.GeminiBaseURL,
			Timeout:           cfg.Vendors.Timeout.Duration(),
			MaxInputDimension: cfg.Storage.MaxInputDimension,
		}, do.MustInvoke[*filestore.Store](i), log)
	})
	do.ProvideNamed[providers.ImageGenerator](injector, string(providers.KindOpenAI), func(i *do.Injector) (providers.ImageGenerator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		if cfg.APIKeys.OpenAI == "" {
			log.Warn("OPENAI_API_KEY is not set, the openai model is disabled")
			return nil, nil
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:            cfg.APIKeys.OpenAI,
			Model:             cfg.Vendors.OpenAIModel,
			BaseURL:           cfg.Vendors.OpenAIBaseURL,
			Timeout:           cfg.Vendors.Timeout.Duration(),
			MaxInputDimension: cfg.Storage.MaxInputDimension,
		}, do.MustInvoke[*filestore.Store](i), log)
	})

	do.Provide[*providers.Registry](injector, func(i *do.Injector) (*providers.Registry, error) {
		return providers.NewRegistry(providers.RegistryOptions{
			Gemini:            do.MustInvokeNamed[providers.ImageGenerator](i, string(providers.KindGemini)),
			OpenAI:            do.MustInvokeNamed[providers.ImageGenerator](i, string(providers.KindOpenAI)),
			BackgroundRemoval: do.MustInvoke[*config.Config](i).Settings.BackgroundRemovalModel,
		})
	})

	do.Provide[*handlers.Handler](injector, func(i *do.Injector) (*handlers.Handler, error) {
		return handlers.New(
			do.MustInvoke[*filestore.Store](i),
			do.MustInvoke[*providers.Registry](i),
			do.MustInvoke[*metrics.Collector](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide[http.Handler](injector, NewRouter)

	do.Provide[*retention.Runner](injector, func(i *do.Injector) (*retention.Runner, error) {
		settings := do.MustInvoke[*config.Config](i).Settings
		return retention.New(do.MustInvoke[*filestore.Store](i), retention.Options{
			MaxAge:   settings.RetentionMaxAge.Duration(),
			Schedule: settings.RetentionSchedule,
			Recorder: do.MustInvoke[*metrics.Collector](i),
		}, do.MustInvoke[*zap.Logger](i))
	})

	return injector
}

// NewRouter mounts the API, the metrics endpoint and both static directories
// behind the middleware chain.
func NewRouter(i *do.Injector) (http.Handler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*zap.Logger](i)
	store := do.MustInvoke[*filestore.Store](i)
	collector := do.MustInvoke[*metrics.Collector](i)

	mux := http.NewServeMux()
	do.MustInvoke[*handlers.Handler](i).Register(mux)
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(store.UploadDir()))))
	mux.Handle(filestore.ResultsPrefix, http.StripPrefix(filestore.ResultsPrefix, http.FileServer(http.Dir(store.ResultDir()))))

	return middleware.Chain(mux,
		middleware.Recovery(logger),
		middleware.RequestLogger(logger),
		middleware.Instrument(collector),
		middleware.CORS(cfg.Settings.CORSAllowedOrigins),
	), nil
}
