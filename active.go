package wren

// ============================================================================
// Active conversation
// ============================================================================

// replyPreviewLimit caps the quoted text carried on a reply, in runes.
const replyPreviewLimit = 140

// ActiveContext tracks which conversation, if any, currently has the
// user's attention, plus a pending reply reference. Direct and room
// focus are mutually exclusive: activating one deactivates the other.
// A conversation switch also drops any pending reply, since a quote
// composed against one room makes no sense sent into another.
type ActiveContext struct {
	active bool
	conv   ConvKey
	reply  *ReplyRef
}

func NewActiveContext() *ActiveContext {
	return &ActiveContext{}
}

// ActivateDirect focuses the direct conversation with peerID.
func (a *ActiveContext) ActivateDirect(peerID string) {
	a.activate(DirectKey(peerID))
}

// ActivateRoom focuses the room with roomID.
func (a *ActiveContext) ActivateRoom(roomID string) {
	a.activate(RoomKey(roomID))
}

func (a *ActiveContext) activate(conv ConvKey) {
	if a.active && a.conv == conv {
		return
	}
	a.active = true
	a.conv = conv
	a.reply = nil
}

// Deactivate clears the focus and any pending reply.
func (a *ActiveContext) Deactivate() {
	a.active = false
	a.conv = ConvKey{}
	a.reply = nil
}

// Conv returns the focused conversation, if any.
func (a *ActiveContext) Conv() (ConvKey, bool) {
	return a.conv, a.active
}

// IsActive reports whether conv currently has focus.
func (a *ActiveContext) IsActive(conv ConvKey) bool {
	return a.active && a.conv == conv
}

// SetReply stages a reply reference for the next send. Replies only
// exist in rooms: staging one in a direct conversation does nothing,
// and staging one with no conversation focused is an error.
func (a *ActiveContext) SetReply(ref ReplyRef) error {
	if !a.active {
		return ErrNoActiveConversation
	}
	if a.conv.Kind != ConvRoom {
		return nil
	}
	if runes := []rune(ref.Text); len(runes) > replyPreviewLimit {
		ref.Text = string(runes[:replyPreviewLimit])
	}
	a.reply = &ref
	return nil
}

// TakeReply returns the pending reply and clears it. Sends call this
// exactly once per attempt, so a quote is never attached twice.
func (a *ActiveContext) TakeReply() *ReplyRef {
	ref := a.reply
	a.reply = nil
	return ref
}

// PutReply restores a reply taken by a send that never made it onto
// the wire.
func (a *ActiveContext) PutReply(ref *ReplyRef) {
	a.reply = ref
}

// Reply returns the pending reply without consuming it.
func (a *ActiveContext) Reply() *ReplyRef {
	return a.reply
}

// ClearReply drops the pending reply.
func (a *ActiveContext) ClearReply() {
	a.reply = nil
}
