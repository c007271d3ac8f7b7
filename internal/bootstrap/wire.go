package bootstrap

import (
	"github.com/rs/zerolog"

	"voxcanvas/internal/audio"
	"voxcanvas/internal/backend"
	"voxcanvas/internal/blobstore"
	"voxcanvas/internal/config"
	"voxcanvas/internal/observability"
	"voxcanvas/internal/ports"
	"voxcanvas/internal/rewrite"
	"voxcanvas/internal/state"
	"voxcanvas/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Recorder     *usecase.RecordingController
	Images       *usecase.ImageController
	Chat         *usecase.ChatController
	Prompt       *state.PromptBuffer
	Conversation *state.Conversation
	Blobs        *blobstore.Store
	Metrics      *observability.Metrics
	Config       config.Config
	Logger       zerolog.Logger
}

// Build wires all backend dependencies for the current runtime. onPromptChange
// receives the prompt text after every mutation and may be nil.
func Build(eventSink ports.EventSink, onPromptChange func(string)) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	rewriter, err := rewrite.Load(cfg.RewriteRulesFile)
	if err != nil {
		return Services{}, err
	}
	logger.Debug().Str("file", cfg.RewriteRulesFile).Int("rules", rewriter.Len()).Msg("rewrite rules loaded")

	client, err := backend.NewClient(backend.Config{BaseURL: cfg.BackendURL}, logger)
	if err != nil {
		return Services{}, err
	}

	metrics := observability.NewMetrics()
	blobs := blobstore.New(metrics.LiveHandles())
	prompt := state.NewPromptBuffer(onPromptChange)
	conversation := state.NewConversation()

	recorder := usecase.NewRecordingController(
		audio.NewFFMPEGCapture(cfg.FFMPEGCommand),
		audio.NewClipAssembler(cfg.AudioContainer, cfg.SampleRate, cfg.Channels),
		client,
		rewriter,
		prompt,
		eventSink,
		metrics,
		logger,
		usecase.RecorderConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.SampleRate,
				Channels:    cfg.Channels,
				InputFormat: cfg.AudioInputFormat,
				InputDevice: cfg.AudioInputDevice,
				Container:   cfg.AudioContainer,
			},
			ChunkSize:     cfg.AudioChunkSize,
			UploadTimeout: cfg.RequestTimeout,
		},
	)

	images := usecase.NewImageController(client, blobs, client, eventSink, metrics, logger, cfg.RequestTimeout)
	chat := usecase.NewChatController(client, prompt, conversation, eventSink, metrics, logger, cfg.RequestTimeout)

	return Services{
		Recorder:     recorder,
		Images:       images,
		Chat:         chat,
		Prompt:       prompt,
		Conversation: conversation,
		Blobs:        blobs,
		Metrics:      metrics,
		Config:       cfg,
		Logger:       logger,
	}, nil
}
