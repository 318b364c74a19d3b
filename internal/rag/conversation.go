package rag

// Conversation é o histórico de uma sessão. É um valor: Append devolve uma
// cópia nova e nunca altera a original, então um turno que falhou não
// corrompe o que já existia.
type Conversation struct {
	messages []Message
}

func NewConversation(history ...Message) Conversation {
	return Conversation{messages: append([]Message(nil), history...)}
}

func (c Conversation) Append(msgs ...Message) Conversation {
	next := make([]Message, 0, len(c.messages)+len(msgs))
	next = append(next, c.messages...)
	next = append(next, msgs...)
	return Conversation{messages: next}
}

// Messages returns a copy of the turns, oldest first.
func (c Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

func (c Conversation) Len() int { return len(c.messages) }
