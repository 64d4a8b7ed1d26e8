package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tubesum/internal/apperr"
	"tubesum/internal/logger"
	"tubesum/internal/models"
	"tubesum/internal/youtube"
)

// AudioAcquirer writes the audio track of url to destPath.
type AudioAcquirer interface {
	Acquire(ctx context.Context, url, destPath string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Generator interface {
	Summarize(ctx context.Context, transcript string) (string, error)
	Answer(ctx context.Context, question, contextText string) (string, error)
}

// FileManager reserves and releases per-request scratch files.
type FileManager interface {
	Reserve(ext string) (*models.TempAudioFile, error)
	Release(ctx context.Context, file *models.TempAudioFile)
}

// Deps is everything the pipeline talks to. Built once at startup.
type Deps struct {
	Acquirer    AudioAcquirer
	Transcriber Transcriber
	Generator   Generator
	Files       FileManager
	Logger      logger.Logger
	// AudioFormat is the extension the acquirer produces.
	AudioFormat string
}

// Pipeline runs summarize and ask requests. It holds no per-request state.
type Pipeline struct {
	acquirer    AudioAcquirer
	transcriber Transcriber
	generator   Generator
	files       FileManager
	logger      logger.Logger
	audioFormat string
}

func New(deps Deps) (*Pipeline, error) {
	if deps.Acquirer == nil || deps.Transcriber == nil || deps.Generator == nil || deps.Files == nil {
		return nil, errors.New("pipeline: acquirer, transcriber, generator and files are required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	format := deps.AudioFormat
	if format == "" {
		format = "mp3"
	}
	return &Pipeline{
		acquirer:    deps.Acquirer,
		transcriber: deps.Transcriber,
		generator:   deps.Generator,
		files:       deps.Files,
		logger:      log,
		audioFormat: format,
	}, nil
}

// Summarize downloads, transcribes and summarizes the video at rawURL.
func (p *Pipeline) Summarize(ctx context.Context, rawURL string) (*models.Summary, error) {
	r := p.newRun(ctx, "summarize")
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return nil, r.fail(apperr.New(apperr.KindValidation, "URL is required"))
	}
	if !youtube.IsValidURL(url) {
		return nil, r.fail(apperr.New(apperr.KindValidation, "Invalid YouTube URL"))
	}
	if id, ok := youtube.VideoID(url); ok {
		p.logger.Info(r.ctx, "Summarizing video %s", id)
	}

	return p.run(r, p.audioFormat, StateDownloading, func(ctx context.Context, path string) error {
		return p.acquirer.Acquire(ctx, url, path)
	})
}

// SummarizeUpload runs the same pipeline over an uploaded audio stream.
func (p *Pipeline) SummarizeUpload(ctx context.Context, src io.Reader, filename string) (*models.Summary, error) {
	r := p.newRun(ctx, "upload")
	if src == nil {
		return nil, r.fail(apperr.New(apperr.KindValidation, "file is required"))
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")

	return p.run(r, ext, StateWriting, func(ctx context.Context, path string) error {
		return writeFile(path, src)
	})
}

// Ask answers question from contextText alone.
func (p *Pipeline) Ask(ctx context.Context, req models.AskRequest) (*models.Answer, error) {
	r := p.newRun(ctx, "ask")
	question := strings.TrimSpace(req.Question)
	contextText := strings.TrimSpace(req.Context)
	if question == "" || contextText == "" {
		return nil, r.fail(apperr.New(apperr.KindValidation, "Question and context are required"))
	}

	r.enter(StateAnswering)
	answer, err := p.generator.Answer(r.ctx, question, contextText)
	if err != nil {
		return nil, r.fail(apperr.Wrap(apperr.KindGeneration, err, "Failed to generate answer"))
	}
	r.enter(StateDone)
	return &models.Answer{Text: answer}, nil
}

// run drives Reserving → populate → Verifying → Transcribing → Summarizing.
// Once a file is reserved, every exit path releases it before returning.
func (p *Pipeline) run(r *execution, ext string, populateState State, populate func(ctx context.Context, path string) error) (*models.Summary, error) {
	r.enter(StateReserving)
	file, err := p.files.Reserve(ext)
	if err != nil {
		return nil, r.fail(apperr.Wrap(apperr.KindInternal, err, "Failed to allocate temporary file"))
	}
	released := false
	release := func() {
		if !released {
			released = true
			p.files.Release(r.ctx, file)
		}
	}
	defer release()

	r.enter(populateState)
	if err := populate(r.ctx, file.Path); err != nil {
		release()
		kind := apperr.KindAcquisition
		if populateState == StateWriting {
			kind = apperr.KindInternal
		}
		return nil, r.fail(apperr.Wrap(kind, err, "Failed to obtain audio"))
	}

	r.enter(StateVerifying)
	info, err := os.Stat(file.Path)
	if err != nil {
		release()
		return nil, r.fail(apperr.Wrap(apperr.KindAcquisition, err, "Downloaded audio file is missing"))
	}
	if info.Size() == 0 {
		release()
		return nil, r.fail(apperr.New(apperr.KindEmptyAudio, "Downloaded audio file is empty"))
	}

	r.enter(StateTranscribing)
	transcript, err := p.transcriber.Transcribe(r.ctx, file.Path)
	if err == nil && strings.TrimSpace(transcript) == "" {
		err = apperr.New(apperr.KindTranscription, "Failed to transcribe audio")
	}
	release()
	if err != nil {
		return nil, r.fail(apperr.Wrap(apperr.KindTranscription, err, "Failed to transcribe audio"))
	}
	p.logger.Debug(r.ctx, "Transcript ready (%d chars)", len(transcript))

	r.enter(StateSummarizing)
	summary, err := p.generator.Summarize(r.ctx, transcript)
	if err != nil {
		return nil, r.fail(apperr.Wrap(apperr.KindGeneration, err, "Failed to generate summary"))
	}

	r.enter(StateCleaningUp)
	r.enter(StateDone)
	return &models.Summary{Text: summary}, nil
}

type execution struct {
	ctx    context.Context
	op     string
	state  State
	start  time.Time
	logger logger.Logger
}

func (p *Pipeline) newRun(ctx context.Context, op string) *execution {
	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, uuid.NewString()[:8])
	}
	return &execution{ctx: ctx, op: op, state: StateValidating, start: time.Now(), logger: p.logger}
}

func (r *execution) enter(next State) {
	if !r.state.canEnter(next) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", r.state, next))
	}
	r.logger.Debug(r.ctx, "%s: %s -> %s", r.op, r.state, next)
	r.state = next
	if next == StateDone {
		r.logger.Info(r.ctx, "%s completed in %s", r.op, time.Since(r.start).Round(time.Millisecond))
	}
}

func (r *execution) fail(err error) error {
	from := r.state
	r.state = StateFailed
	r.logger.Error(r.ctx, "%s failed during %s: %v", r.op, from, err)
	return err
}

func writeFile(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
