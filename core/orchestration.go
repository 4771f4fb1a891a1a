package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-docchat/core/events"
	"github.com/koscakluka/ema-docchat/core/notifications"
	"go.opentelemetry.io/otel/attribute"
)

var errEmptyAnswer = errors.New("answer is empty")

// Orchestrator sequences the voice conversation about a single document. It
// is the only owner of the conversation state, the turn log and the open
// speech handles. Transitions happen under one lock; audio and network I/O
// happen outside it.
type Orchestrator struct {
	mu           sync.Mutex
	state        State
	conversation conversationLog
	errors       Errors
	documentText string
	closed       bool

	// recognizer and synthesizer are the open speech handles. At most one of
	// them is set at any time.
	recognizer  *speechSession
	synthesizer *speechSession

	speechInput   speechInput
	speechOutput  speechOutput
	answers       AnswerService
	answerTimeout time.Duration

	channel         NotificationChannel
	room            string
	onRemoteMessage func(notifications.Message)

	eventCallbacks []func(events.Event)
	queue          *eventQueue
	newTurnID      func() string

	closeCtx  context.Context
	closeAll  context.CancelFunc
	closeOnce sync.Once
	running   sync.WaitGroup
}

// speechSession is an open recognizer or synthesizer. done is closed once the
// port released it.
type speechSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		state:         StateIdle,
		answerTimeout: DefaultAnswerTimeout,
		newTurnID:     newTurnID,
	}
	o.closeCtx, o.closeAll = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(o)
	}

	o.queue = newEventQueue(o.handleEvent)
	o.speechInput.emitEvent = o.queue.push

	if o.channel != nil {
		o.joinRoom()
		o.running.Add(1)
		go o.consumeChannel()
	}

	return o
}

// Start begins the conversation about documentText by speaking the
// introduction. It blocks until the introduction was spoken or stopped.
func (o *Orchestrator) Start(ctx context.Context, documentText string) error {
	ctx, span := tracer.Start(ctx, "teach")
	defer span.End()

	if strings.TrimSpace(documentText) == "" {
		return ErrEmptyDocument
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	} else if o.state.IsBusy() {
		o.mu.Unlock()
		return ErrStartRejected
	}
	o.running.Add(1)
	defer o.running.Done()

	o.documentText = documentText
	o.setStateLocked(StateTeaching)
	session, speakCtx := o.openSessionLocked(ctx, &o.synthesizer)
	o.mu.Unlock()

	introduction := Introduction(documentText)
	span.SetAttributes(attribute.String("introduction", introduction))
	err := o.speechOutput.speak(speakCtx, introduction)
	stopped := speakCtx.Err() != nil

	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseSessionLocked(&o.synthesizer, session)
	if err != nil {
		recordError(span, "failed to speak introduction", err)
		o.latchLocked(CategoryAudio, err)
		o.setStateLocked(StateErrored)
		return err
	}
	// A stopped introduction was not spoken, so a latched audio error stays.
	if !stopped {
		o.clearLocked(CategoryAudio)
	}
	o.setStateLocked(StateIdle)
	return nil
}

// Listen runs one question and answer turn: it listens for a single
// utterance, asks the answer service about it and speaks the answer. It is
// rejected with ErrListenRejected unless the conversation is idle or errored.
// A listen that hears nothing, or is stopped, returns nil without a turn.
func (o *Orchestrator) Listen(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "listen")
	defer span.End()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	} else if !o.state.CanListen() {
		o.mu.Unlock()
		return ErrListenRejected
	}
	o.running.Add(1)
	defer o.running.Done()

	o.setStateLocked(StateListening)
	if stale := o.takeSessionsLocked(); len(stale) > 0 {
		o.mu.Unlock()
		stopSessions(stale)
		o.mu.Lock()
	}
	session, listenCtx := o.openSessionLocked(ctx, &o.recognizer)
	o.mu.Unlock()

	transcript, err := o.speechInput.listenOnce(listenCtx)
	stopped := listenCtx.Err() != nil

	o.mu.Lock()
	o.releaseSessionLocked(&o.recognizer, session)
	if err != nil {
		recordError(span, "failed to listen", err)
		o.latchLocked(CategoryAudio, err)
		o.setStateLocked(StateIdle)
		o.mu.Unlock()
		return err
	}
	if !stopped {
		o.clearLocked(CategoryAudio)
	}
	if transcript == "" {
		o.setStateLocked(StateIdle)
		o.mu.Unlock()
		return nil
	}
	o.appendTurnLocked(SpeakerUser, transcript)
	o.setStateLocked(StateThinking)
	documentText := o.documentText
	o.mu.Unlock()

	answer, err := o.ask(ctx, transcript, documentText)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		recordError(span, "failed to get answer", err)
		o.latchLocked(CategoryAnswer, err)
		o.setStateLocked(StateIdle)
		o.mu.Unlock()
		return err
	}
	o.clearLocked(CategoryAnswer)
	o.appendTurnLocked(SpeakerAgent, answer)
	o.setStateLocked(StateSpeaking)
	session, speakCtx := o.openSessionLocked(ctx, &o.synthesizer)
	o.mu.Unlock()

	err = o.speechOutput.speak(speakCtx, answer)
	stopped = speakCtx.Err() != nil

	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseSessionLocked(&o.synthesizer, session)
	if err != nil {
		recordError(span, "failed to speak answer", err)
		o.latchLocked(CategoryAudio, err)
		o.setStateLocked(StateIdle)
		return err
	}
	if !stopped {
		o.clearLocked(CategoryAudio)
	}
	o.setStateLocked(StateIdle)
	return nil
}

// Stop cancels the open recognizer or synthesizer and returns once it was
// released. With nothing open it does nothing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	sessions := o.takeSessionsLocked()
	o.mu.Unlock()

	stopSessions(sessions)
}

// Close stops any turn in progress and releases the orchestrator. Pending
// events are delivered before Close returns, so it must not be called from an
// event callback. Repeated calls are ignored.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()

		o.closeAll()
		o.running.Wait()
		o.queue.close()
	})
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Turns returns a copy of the turn log in chronological order.
func (o *Orchestrator) Turns() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversation.values()
}

func (o *Orchestrator) Errors() Errors {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errors
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		State:        o.state,
		Turns:        o.conversation.values(),
		Errors:       o.errors,
		DocumentText: o.documentText,
	}
}

// ask calls the answer service bounded by the answer timeout. The call is
// abandoned on timeout even if the service ignores its context.
func (o *Orchestrator) ask(ctx context.Context, question, documentText string) (string, error) {
	ctx, span := tracer.Start(ctx, "ask")
	defer span.End()

	if o.answers == nil {
		return "", &AnswerServiceError{Err: fmt.Errorf("answer service %w", errNotConfigured)}
	}

	ctx, cancel := withCloseHook(ctx, o.closeCtx)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, o.answerTimeout)
	defer cancelTimeout()

	type askResult struct {
		answer string
		err    error
	}
	results := make(chan askResult, 1)
	go func() {
		answer, err := o.answers.Ask(ctx, question, documentText)
		results <- askResult{answer: answer, err: err}
	}()

	select {
	case result := <-results:
		if result.err != nil {
			recordError(span, "answer service failed", result.err)
			return "", &AnswerServiceError{Timeout: errors.Is(result.err, context.DeadlineExceeded), Err: result.err}
		}
		answer := strings.TrimSpace(result.answer)
		if answer == "" {
			return "", &AnswerServiceError{Err: errEmptyAnswer}
		}
		span.SetAttributes(attribute.Int("answer.length", len(answer)))
		return answer, nil
	case <-ctx.Done():
		err := ctx.Err()
		recordError(span, "answer service abandoned", err)
		return "", &AnswerServiceError{Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
	}
}

func (o *Orchestrator) openSessionLocked(ctx context.Context, slot **speechSession) (*speechSession, context.Context) {
	ctx, cancel := withCloseHook(ctx, o.closeCtx)
	session := &speechSession{cancel: cancel, done: make(chan struct{})}
	*slot = session
	return session, ctx
}

func (o *Orchestrator) releaseSessionLocked(slot **speechSession, session *speechSession) {
	session.cancel()
	close(session.done)
	if *slot == session {
		*slot = nil
	}
}

func (o *Orchestrator) takeSessionsLocked() []*speechSession {
	var sessions []*speechSession
	for _, slot := range []**speechSession{&o.recognizer, &o.synthesizer} {
		if *slot != nil {
			sessions = append(sessions, *slot)
			*slot = nil
		}
	}
	return sessions
}

func stopSessions(sessions []*speechSession) {
	for _, session := range sessions {
		session.cancel()
		<-session.done
	}
}

func (o *Orchestrator) setStateLocked(state State) {
	if o.state == state {
		return
	}
	previous := o.state
	o.state = state
	logger.Debug("conversation state changed", "from", previous, "to", state)
	o.queue.push(events.NewStateChanged(previous.String(), state.String()))
}

func (o *Orchestrator) appendTurnLocked(speaker Speaker, text string) {
	turn := Turn{ID: o.newTurnID(), Speaker: speaker, Text: text, Timestamp: time.Now()}
	o.conversation.append(turn)
	o.queue.push(events.NewTurnAppended(turn.ID, string(turn.Speaker), turn.Text, turn.Timestamp))
}

func (o *Orchestrator) latchLocked(category ErrorCategory, err error) {
	o.errors.set(category, err)
	logger.Warn("error latched", "category", category, "error", err)
	o.queue.push(events.NewErrorLatched(string(category), err))
}

func (o *Orchestrator) clearLocked(category ErrorCategory) {
	if o.errors.get(category) == nil {
		return
	}
	o.errors.set(category, nil)
	o.queue.push(events.NewErrorCleared(string(category)))
}
