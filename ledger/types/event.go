package types

// Event is emitted by a contract during the execution of a transaction.
type Event struct {
	Contract string
	Topics   []Value
	Data     Value
}

// Is returns true when the topics of the event are the given symbols.
func (e Event) Is(topics ...string) bool {
	if len(e.Topics) != len(topics) {
		return false
	}

	for i, topic := range topics {
		sym, err := e.Topics[i].AsSymbol()
		if err != nil || sym != topic {
			return false
		}
	}

	return true
}
