package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go-ai-chat/internal/group"
	"go-ai-chat/internal/history"
	"go-ai-chat/internal/llm"
	"go-ai-chat/internal/metrics"
	"go-ai-chat/internal/stream"
)

var (
	ErrNotInGroup = errors.New("not in a group")
	ErrEmptyGroup = errors.New("group name is empty")
)

const archiveTimeout = 5 * time.Second

// Broadcaster is the fan-out substrate the coordinator drives.
type Broadcaster interface {
	AddToGroup(connID, group string)
	BroadcastToGroup(group string, frame Frame, exclude ...string)
	Notify(connID string, frame Frame)
}

// Archiver receives every committed turn. Failures never affect the chat.
type Archiver interface {
	RecordTurn(ctx context.Context, group string, turn history.Turn) error
}

type Options struct {
	AssistantPrefix    string
	AssistantName      string
	Model              string
	SecurityEnabled    bool
	ApplicationName    string
	GenerationTimeout  time.Duration
	CancelOnDisconnect bool
}

type Deps struct {
	Membership  *group.Membership
	History     *history.Store
	Coalescer   *stream.Coalescer
	Generator   llm.Generator
	Broadcaster Broadcaster
	// Archive is optional.
	Archive Archiver
	Log     zerolog.Logger
}

// Coordinator handles join and chat requests for every connection. Each
// assistant reply runs as its own goroutine; nothing serializes unrelated
// requests.
type Coordinator struct {
	membership  *group.Membership
	history     *history.Store
	coalescer   *stream.Coalescer
	generator   llm.Generator
	broadcaster Broadcaster
	archive     Archiver
	opts        Options
	log         zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]map[string]context.CancelFunc // connection -> stream id
}

func NewCoordinator(deps Deps, opts Options) *Coordinator {
	if opts.AssistantName == "" {
		opts.AssistantName = "assistant"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		membership:  deps.Membership,
		history:     deps.History,
		coalescer:   deps.Coalescer,
		generator:   deps.Generator,
		broadcaster: deps.Broadcaster,
		archive:     deps.Archive,
		opts:        opts,
		log:         deps.Log.With().Str("component", "coordinator").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		inflight:    make(map[string]map[string]context.CancelFunc),
	}
}

// Join puts the connection into group, replacing any previous group. Group
// names are used as given; only the empty name is rejected.
func (c *Coordinator) Join(connID, groupName string) error {
	if groupName == "" {
		return ErrEmptyGroup
	}
	c.broadcaster.AddToGroup(connID, groupName)
	c.membership.Join(connID, groupName)
	c.log.Debug().Str("connection", connID).Str("group", groupName).Msg("joined group")
	return nil
}

// Disconnect drops the connection's membership and, when configured,
// cancels the generations it started.
func (c *Coordinator) Disconnect(connID string) {
	c.membership.Leave(connID)
	if !c.opts.CancelOnDisconnect {
		return
	}
	c.mu.Lock()
	cancels := c.inflight[connID]
	delete(c.inflight, connID)
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Chat handles one message. History and peer broadcast happen before Chat
// returns, so messages from one connection keep their order. An assistant
// reply continues in the background.
func (c *Coordinator) Chat(ctx context.Context, req ChatRequest) error {
	groupName, ok := c.membership.Lookup(req.ConnectionID)
	if !ok {
		metrics.ChatRequestsTotal.WithLabelValues("rejected").Inc()
		return ErrNotInGroup
	}

	cls := Classify(c.opts.AssistantPrefix, req.Message)
	metrics.ChatRequestsTotal.WithLabelValues(cls.Kind.String()).Inc()

	messages := c.history.AppendUserTurn(groupName, req.UserName, cls.Text)
	c.record(ctx, groupName, history.Turn{Speaker: history.SpeakerUser, Name: req.UserName, Text: cls.Text})
	c.broadcaster.BroadcastToGroup(groupName, NewMessageFrame(req.UserName, req.Message), req.ConnectionID)

	if cls.Kind == KindPeer {
		return nil
	}

	rc := req.Client
	rc.ApplicationName = c.opts.ApplicationName
	opts := llm.BuildOptions(c.opts.Model, c.opts.SecurityEnabled, &rc)
	c.startGeneration(req.ConnectionID, groupName, messages, opts)
	return nil
}

// Wait blocks until every in-flight generation has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown waits for in-flight generations and cancels whatever is still
// running when ctx expires.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

func (c *Coordinator) startGeneration(connID, groupName string, messages []llm.Message, opts llm.Options) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.opts.GenerationTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.opts.GenerationTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}

	msg := c.coalescer.Start()
	c.track(connID, msg.ID(), cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.untrack(connID, msg.ID())
		defer cancel()
		c.generate(ctx, connID, groupName, messages, opts, msg)
	}()
}

func (c *Coordinator) generate(ctx context.Context, connID, groupName string, messages []llm.Message, opts llm.Options, msg *stream.Message) {
	log := c.log.With().Str("group", groupName).Str("connection", connID).Str("stream", msg.ID()).Logger()
	start := time.Now()

	s, err := c.generator.Stream(ctx, messages, opts)
	if err != nil {
		c.generationFailed(log, connID, fmt.Errorf("open stream: %w", err))
		return
	}
	defer s.Close()

	for {
		if err := ctx.Err(); err != nil {
			c.generationFailed(log, connID, err)
			return
		}
		fragment, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.generationFailed(log, connID, fmt.Errorf("receive: %w", err))
			return
		}
		if flush, ok := msg.Append(fragment); ok {
			c.emit(groupName, flush)
		}
	}

	final, ok := msg.Finish()
	if !ok {
		return
	}
	c.emit(groupName, final)
	c.history.AppendAssistantTurn(groupName, final.Text)
	c.record(ctx, groupName, history.Turn{Speaker: history.SpeakerAssistant, Text: final.Text})

	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	log.Debug().Int("length", len(final.Text)).Msg("assistant reply complete")
}

func (c *Coordinator) emit(groupName string, f stream.Flush) {
	metrics.StreamFlushesTotal.WithLabelValues(fmt.Sprint(f.Final)).Inc()
	c.broadcaster.BroadcastToGroup(groupName, NewStreamFrame(c.opts.AssistantName, f.ID, f.Text))
}

// generationFailed leaves history untouched: a truncated reply is not saved.
func (c *Coordinator) generationFailed(log zerolog.Logger, connID string, err error) {
	metrics.GenerationErrorsTotal.Inc()
	log.Error().Err(err).Msg("assistant generation failed")
	c.broadcaster.Notify(connID, NewErrorFrame("assistant reply failed"))
}

func (c *Coordinator) record(ctx context.Context, groupName string, turn history.Turn) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := c.archive.RecordTurn(ctx, groupName, turn); err != nil {
		c.log.Warn().Err(err).Str("group", groupName).Msg("archive turn failed")
	}
}

func (c *Coordinator) track(connID, streamID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	streams, ok := c.inflight[connID]
	if !ok {
		streams = make(map[string]context.CancelFunc)
		c.inflight[connID] = streams
	}
	streams[streamID] = cancel
}

func (c *Coordinator) untrack(connID, streamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	streams, ok := c.inflight[connID]
	if !ok {
		return
	}
	delete(streams, streamID)
	if len(streams) == 0 {
		delete(c.inflight, connID)
	}
}
