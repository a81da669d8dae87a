package core

// MolValue is one instance of a molecule sitting in a bag: an
// immutable payload plus, for instances emitted by a Blocking
// emitter, the ReplySlot a reaction must eventually settle.
type MolValue struct {
	Payload any
	reply   *replySlot
}

func nonBlockingValue(payload any) MolValue {
	return MolValue{Payload: payload}
}

func blockingValue(payload any, slot *replySlot) MolValue {
	return MolValue{Payload: payload, reply: slot}
}

// HasReply reports whether this instance carries a reply obligation.
func (v MolValue) HasReply() bool { return v.reply != nil }
