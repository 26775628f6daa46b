package chat

import (
	"errors"

	"github.com/zjregee/alterchat/internal/models"
)

func (c *Controller) consume(session *Session, events <-chan models.RunEvent) {
	for event := range events {
		c.apply(session, event)
	}

	c.mu.Lock()
	completed := c.session == session && session.finish(StateComplete, nil)
	c.mu.Unlock()

	c.governor.Release(session.token)
	session.token.Cancel()
	if completed {
		c.logger.Info("stream session complete", "session_id", session.ID())
		c.notify()
	}
}

// apply folds one event into the store. Events of a session that is no longer
// active, or already terminal, are dropped.
func (c *Controller) apply(session *Session, event models.RunEvent) {
	if event == nil {
		return
	}

	var (
		reportErr     error
		threadChanged string
	)

	c.mu.Lock()
	if c.session != session || session.terminal() {
		c.mu.Unlock()
		c.logger.Debug("dropping event of inactive session",
			"session_id", session.ID(),
			"type", event.GetType(),
		)
		return
	}

	session.advance(StateStreaming)

	switch e := event.(type) {
	case models.RunMetadata:
		if e.ThreadID != "" && e.ThreadID != c.threadID {
			c.threadID = e.ThreadID
			threadChanged = e.ThreadID
		}
	case models.RunValues:
		for _, msg := range e.Messages {
			c.mergeLocked(session, msg)
		}
		if e.Interrupt != nil {
			c.interrupt = e.Interrupt
		}
	case models.RunMessage:
		c.mergeLocked(session, e.Message)
	case models.RunInterrupt:
		interrupt := e.Interrupt
		c.interrupt = &interrupt
	case models.RunError:
		message := e.Error
		if message == "" {
			message = "agent run failed"
		}
		reportErr = errors.New(message)
		session.finish(StateErrored, reportErr)
	case models.RunEnd:
		session.finish(StateComplete, nil)
	}

	c.trackFirstTokenLocked(session)
	c.mu.Unlock()

	if reportErr != nil {
		c.governor.Release(session.token)
		session.token.Cancel()
		c.logger.Warn("runtime reported error", "session_id", session.ID(), "error", reportErr)
		c.governor.Report(reportErr)
	}
	if threadChanged != "" && c.onThread != nil {
		c.onThread(threadChanged)
	}
	c.notify()
}

func (c *Controller) mergeLocked(session *Session, msg *models.Message) {
	if msg == nil || msg.ID == "" {
		c.logger.Warn("skipping message without id", "session_id", session.ID())
		return
	}

	if existing := c.store.Get(msg.ID); existing != nil && existing.IsInternal() {
		msg = msg.Clone()
		msg.Visibility = models.VisibilityInternal
	}
	c.store.Upsert(msg)
	session.confirm(msg.ID)
}

// trackFirstTokenLocked flips firstTokenReceived once the most recent message
// is an ai message of this turn carrying text or tool calls.
func (c *Controller) trackFirstTokenLocked(session *Session) {
	if session.FirstTokenReceived() {
		return
	}

	n := c.store.Len()
	if n <= session.turnBase {
		return
	}
	if last := c.store.Last(); last != nil && last.HasAssistantContent() {
		session.markFirstToken()
	}
}
