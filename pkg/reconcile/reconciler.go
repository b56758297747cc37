// Package reconcile applies asynchronous boundary events to the ledger:
// send/delivery acknowledgements, remote messages, remote deletions and
// connection status pushes. Dedup by guid makes every application
// idempotent; per-chat shard routing keeps same-guid events in arrival
// order while different chats interleave freely.
package reconcile

import (
	"bytes"
	"sync"
	"time"

	"peerchat/pkg/boundary"
	"peerchat/pkg/connstate"
	"peerchat/pkg/events"
	"peerchat/pkg/identity"
	"peerchat/pkg/ledger"
	"peerchat/pkg/logger"
	"peerchat/pkg/models"
)

// MembershipRefresher is the collaborator that re-reads a group chat's
// member list. The reconciler calls it exactly once per inserted system
// message.
type MembershipRefresher interface {
	RefreshMembers(chatID string)
}

// Reconciler consumes boundary events and converges the ledger. It
// implements boundary.Sink; Enqueue hands off without blocking the
// boundary's I/O thread.
type Reconciler struct {
	q       *Queue
	bus     *events.Bus
	tracker *connstate.Tracker
	refresh MembershipRefresher
	selfKey []byte

	wg      sync.WaitGroup
	started bool
}

// New builds a Reconciler. refresh may be nil when no membership collaborator
// exists (direct-only client).
func New(q *Queue, bus *events.Bus, tracker *connstate.Tracker, refresh MembershipRefresher, selfKey []byte) *Reconciler {
	return &Reconciler{q: q, bus: bus, tracker: tracker, refresh: refresh, selfKey: selfKey}
}

// Enqueue accepts a boundary event for asynchronous application.
func (r *Reconciler) Enqueue(ev boundary.Event) error {
	return r.q.TryEnqueue(ev)
}

// Start launches one worker per queue shard. Call Stop to drain and join.
func (r *Reconciler) Start() {
	if r.started {
		return
	}
	r.started = true
	for i := 0; i < r.q.Shards(); i++ {
		r.wg.Add(1)
		go func(shard int) {
			defer r.wg.Done()
			for it := range r.q.Out(shard) {
				r.apply(it.Ev)
				it.Done()
				queueDepth.Dec()
			}
		}(i)
	}
}

// Stop closes the queue, drains remaining events and joins the workers.
func (r *Reconciler) Stop() {
	r.q.Close()
	r.wg.Wait()
}

// apply dispatches one event. A malformed or failing event is logged and
// dropped; the loop must never halt because one push was broken, since that
// would silently stop all further delivery for the process lifetime.
func (r *Reconciler) apply(ev *boundary.Event) {
	switch ev.Kind {
	case boundary.EvSendAcked:
		r.applySendAcked(ev)
	case boundary.EvDeliveryAcked:
		r.applyDeliveryAcked(ev)
	case boundary.EvRemoteMessage:
		r.applyRemoteMessage(ev)
	case boundary.EvRemoteDeletion:
		r.applyRemoteDeletion(ev)
	case boundary.EvConnectionStatus:
		r.tracker.Apply(ev.Chat, ev.Conn)
	default:
		r.drop(ev, "unknown_event_kind", nil)
	}
}

func (r *Reconciler) drop(ev *boundary.Event, reason string, err error) {
	eventsDropped.Inc()
	logger.Warn("event_dropped", "kind", string(ev.Kind), "chat", ev.Chat, "guid", ev.GUID, "reason", reason, "error", err)
}

// applySendAcked marks the pending row Sent and attaches the mediator's
// server id. A missing row (ack racing an app restart) is a no-op: the
// ledger write is authoritative, the ack is advisory.
func (r *Reconciler) applySendAcked(ev *boundary.Event) {
	if ev.GUID == 0 || ev.Chat == "" {
		r.drop(ev, "missing_identity", nil)
		return
	}
	m, err := ledger.FindByGUID(ev.Chat, ev.GUID)
	if err != nil {
		r.drop(ev, "ledger_read_failed", err)
		return
	}
	if m == nil {
		logger.Debug("send_ack_without_row", "chat", ev.Chat, "guid", ev.GUID)
		eventsApplied.WithLabelValues(string(ev.Kind)).Inc()
		return
	}
	if ev.ServerID != 0 {
		if _, err := ledger.SetServerID(ev.Chat, ev.GUID, ev.ServerID); err != nil {
			r.drop(ev, "server_id_update_failed", err)
			return
		}
	}
	changed, err := ledger.SetDeliveryState(ev.Chat, ev.GUID, models.StateSent)
	if err != nil {
		r.drop(ev, "state_update_failed", err)
		return
	}
	if changed {
		r.bus.Publish(events.Event{Kind: events.MessageStateChanged, Chat: ev.Chat, GUID: ev.GUID, LocalID: m.LocalID, State: models.StateSent})
	}
	eventsApplied.WithLabelValues(string(ev.Kind)).Inc()
}

// applyDeliveryAcked moves the row to Delivered or Failed. Re-applying the
// same ack is a no-op; so is an ack for a guid the ledger never saw.
func (r *Reconciler) applyDeliveryAcked(ev *boundary.Event) {
	if ev.GUID == 0 || ev.Chat == "" {
		r.drop(ev, "missing_identity", nil)
		return
	}
	st := models.StateFailed
	if ev.Delivered {
		st = models.StateDelivered
	}
	changed, err := ledger.SetDeliveryState(ev.Chat, ev.GUID, st)
	if err != nil {
		r.drop(ev, "state_update_failed", err)
		return
	}
	if changed {
		if m, ferr := ledger.FindByGUID(ev.Chat, ev.GUID); ferr == nil && m != nil {
			r.bus.Publish(events.Event{Kind: events.MessageStateChanged, Chat: ev.Chat, GUID: ev.GUID, LocalID: m.LocalID, State: st})
		}
	}
	eventsApplied.WithLabelValues(string(ev.Kind)).Inc()
}

// applyRemoteMessage inserts the pushed message unless the guid is already
// present (own echo or duplicate delivery). Whatever the insert outcome,
// the delivery state converges to the most confirmatory value seen.
func (r *Reconciler) applyRemoteMessage(ev *boundary.Event) {
	if ev.GUID == 0 || ev.Chat == "" {
		r.drop(ev, "missing_identity", nil)
		return
	}
	if len(ev.Payload) == 0 {
		r.drop(ev, "empty_payload", nil)
		return
	}
	if len(ev.Signature) > 0 && !identity.CheckSignature(ev.Author, ev.Signature, ev.Payload) {
		r.drop(ev, "bad_signature", nil)
		return
	}
	if ev.Type == models.TypeSystem {
		if _, err := models.DecodeSystemEvent(ev.Payload); err != nil {
			r.drop(ev, "invalid_system_payload", err)
			return
		}
	}
	if ev.Type == models.TypeReaction {
		if _, err := models.DecodeReaction(ev.Payload); err != nil {
			r.drop(ev, "invalid_reaction_payload", err)
			return
		}
	}

	ts := ev.TS
	if ts == 0 {
		ts = time.Now().UTC().UnixMilli()
	}
	msg := models.Message{
		GUID:     ev.GUID,
		Chat:     ev.Chat,
		Author:   ev.Author,
		TS:       ts,
		Type:     ev.Type,
		Data:     ev.Payload,
		ReplyTo:  ev.ReplyTo,
		State:    models.StateDelivered,
		Incoming: !bytes.Equal(ev.Author, r.selfKey),
	}
	localID, inserted, err := ledger.InsertIfAbsent(msg)
	if err != nil {
		r.drop(ev, "insert_failed", err)
		return
	}
	switch {
	case inserted:
		r.bus.Publish(events.Event{Kind: events.MessageInserted, Chat: ev.Chat, GUID: ev.GUID, LocalID: localID, State: models.StateDelivered})
		if ev.Type == models.TypeSystem {
			r.applySystem(ev)
		}
	case localID != 0:
		// guid already present: the remote copy confirms delivery
		changed, serr := ledger.SetDeliveryState(ev.Chat, ev.GUID, models.StateDelivered)
		if serr != nil {
			r.drop(ev, "state_update_failed", serr)
			return
		}
		if changed {
			r.bus.Publish(events.Event{Kind: events.MessageStateChanged, Chat: ev.Chat, GUID: ev.GUID, LocalID: localID, State: models.StateDelivered})
		}
	default:
		// tombstoned: the message was deleted before this copy arrived
		logger.Debug("remote_message_tombstoned", "chat", ev.Chat, "guid", ev.GUID)
	}
	eventsApplied.WithLabelValues(string(ev.Kind)).Inc()
}

// applySystem runs the membership side effects for a freshly inserted
// system message. The insert's guid dedup guarantees this runs exactly once
// per logical event even when the push is delivered twice.
func (r *Reconciler) applySystem(ev *boundary.Event) {
	sys, err := models.DecodeSystemEvent(ev.Payload)
	if err != nil {
		// validated before insert; reaching this means a corrupted row
		r.drop(ev, "invalid_system_payload", err)
		return
	}
	if logger.Audit != nil {
		logger.Audit.Info("membership_event", "chat", ev.Chat, "kind", string(sys.Kind), "guid", ev.GUID)
	}
	if r.refresh != nil {
		r.refresh.RefreshMembers(ev.Chat)
	}
	r.bus.Publish(events.Event{Kind: events.MembershipChanged, Chat: ev.Chat, GUID: ev.GUID})
}

// applyRemoteDeletion removes the row and records a tombstone. Deleting a
// guid that never arrived is a successful no-op.
func (r *Reconciler) applyRemoteDeletion(ev *boundary.Event) {
	if ev.GUID == 0 || ev.Chat == "" {
		r.drop(ev, "missing_identity", nil)
		return
	}
	ts := ev.TS
	if ts == 0 {
		ts = time.Now().UTC().UnixMilli()
	}
	removed, err := ledger.DeleteByGUID(ev.Chat, ev.GUID, ts)
	if err != nil {
		r.drop(ev, "delete_failed", err)
		return
	}
	if removed {
		if logger.Audit != nil {
			logger.Audit.Info("remote_deletion", "chat", ev.Chat, "guid", ev.GUID)
		}
		r.bus.Publish(events.Event{Kind: events.MessageDeleted, Chat: ev.Chat, GUID: ev.GUID})
	}
	eventsApplied.WithLabelValues(string(ev.Kind)).Inc()
}
