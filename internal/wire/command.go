package wire

import "fmt"

// Command identifies the kind of server->sensor command carried in a
// tunnelled command-queue entry. Numeric values are part of the wire
// contract and must never be renumbered.
type Command uint8

const (
	NoCommand               Command = 0
	SubscribeToAnnouncement Command = 1
	RegisterKeyloadMessage  Command = 2
	StartSendingMessages    Command = 3
	CommandClearClientState Command = 4
	PrintlnSubscriberStatus Command = 5
	StopFetching            Command = 6
)

func (c Command) String() string {
	switch c {
	case NoCommand:
		return "NO_COMMAND"
	case SubscribeToAnnouncement:
		return "SUBSCRIBE_TO_ANNOUNCEMENT"
	case RegisterKeyloadMessage:
		return "REGISTER_KEYLOAD_MESSAGE"
	case StartSendingMessages:
		return "START_SENDING_MESSAGES"
	case CommandClearClientState:
		return "CLEAR_CLIENT_STATE"
	case PrintlnSubscriberStatus:
		return "PRINTLN_SUBSCRIBER_STATUS"
	case StopFetching:
		return "STOP_FETCHING"
	default:
		return "UNKNOWN_COMMAND"
	}
}

func (c Command) NeededSize() int { return TagSize }

func (c Command) ToBytes(buf []byte) (int, error) { return putTag(uint8(c), buf) }

func CommandFromBytes(buf []byte) (Command, error) {
	tag, err := getTag(buf)
	if err != nil {
		return 0, err
	}
	return Command(tag), nil
}

// SubscribeToAnnouncementCommand carries the announcement link the
// subscriber must fetch and process to join the channel.
type SubscribeToAnnouncementCommand struct {
	AnnouncementLink string
}

func (s SubscribeToAnnouncementCommand) NeededSize() int {
	return TagSize + StringSize(s.AnnouncementLink)
}

func (s SubscribeToAnnouncementCommand) ToBytes(buf []byte) (int, error) {
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	if _, err := putTag(uint8(SubscribeToAnnouncement), tagSlice); err != nil {
		return 0, err
	}
	if err := putString(&c, s.AnnouncementLink, buf); err != nil {
		return 0, err
	}
	return c.end, nil
}

func SubscribeToAnnouncementCommandFromBytes(buf []byte) (SubscribeToAnnouncementCommand, error) {
	var s SubscribeToAnnouncementCommand
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return s, err
	}
	tag, err := getTag(tagSlice)
	if err != nil {
		return s, err
	}
	if Command(tag) != SubscribeToAnnouncement {
		return s, fmt.Errorf("wire: expected SUBSCRIBE_TO_ANNOUNCEMENT tag, got %s", Command(tag))
	}
	s.AnnouncementLink, err = getString(&c, buf)
	return s, err
}

// RegisterKeyloadCommand carries the subscriber public keys the author
// should admit into the next keyload message.
type RegisterKeyloadCommand struct {
	SubscriberPublicKeys []string
}

func (r RegisterKeyloadCommand) NeededSize() int {
	size := TagSize + LengthPrefixSize
	for _, k := range r.SubscriberPublicKeys {
		size += StringSize(k)
	}
	return size
}

func (r RegisterKeyloadCommand) ToBytes(buf []byte) (int, error) {
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	if _, err := putTag(uint8(RegisterKeyloadMessage), tagSlice); err != nil {
		return 0, err
	}
	c.advance(LengthPrefixSize)
	countSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	putUint32(countSlice, uint32(len(r.SubscriberPublicKeys)))
	for _, k := range r.SubscriberPublicKeys {
		if err := putString(&c, k, buf); err != nil {
			return 0, err
		}
	}
	return c.end, nil
}

func RegisterKeyloadCommandFromBytes(buf []byte) (RegisterKeyloadCommand, error) {
	var r RegisterKeyloadCommand
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return r, err
	}
	tag, err := getTag(tagSlice)
	if err != nil {
		return r, err
	}
	if Command(tag) != RegisterKeyloadMessage {
		return r, fmt.Errorf("wire: expected REGISTER_KEYLOAD_MESSAGE tag, got %s", Command(tag))
	}
	c.advance(LengthPrefixSize)
	countSlice, err := c.slice(buf)
	if err != nil {
		return r, err
	}
	count := int(getUint32(countSlice))
	r.SubscriberPublicKeys = make([]string, 0, count)
	for i := 0; i < count; i++ {
		k, err := getString(&c, buf)
		if err != nil {
			return r, err
		}
		r.SubscriberPublicKeys = append(r.SubscriberPublicKeys, k)
	}
	return r, nil
}

// SendMessagesCommand carries the raw packet bytes the sensor should send,
// one payload per message, in the order they must be sent.
type SendMessagesCommand struct {
	MessageBytes [][]byte
}

func (s SendMessagesCommand) NeededSize() int {
	size := TagSize + LengthPrefixSize
	for _, b := range s.MessageBytes {
		size += BytesSize(b)
	}
	return size
}

func (s SendMessagesCommand) ToBytes(buf []byte) (int, error) {
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	if _, err := putTag(uint8(StartSendingMessages), tagSlice); err != nil {
		return 0, err
	}
	c.advance(LengthPrefixSize)
	countSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	putUint32(countSlice, uint32(len(s.MessageBytes)))
	for _, b := range s.MessageBytes {
		if err := putBytes(&c, b, buf); err != nil {
			return 0, err
		}
	}
	return c.end, nil
}

func SendMessagesCommandFromBytes(buf []byte) (SendMessagesCommand, error) {
	var s SendMessagesCommand
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return s, err
	}
	tag, err := getTag(tagSlice)
	if err != nil {
		return s, err
	}
	if Command(tag) != StartSendingMessages {
		return s, fmt.Errorf("wire: expected START_SENDING_MESSAGES tag, got %s", Command(tag))
	}
	c.advance(LengthPrefixSize)
	countSlice, err := c.slice(buf)
	if err != nil {
		return s, err
	}
	count := int(getUint32(countSlice))
	s.MessageBytes = make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		b, err := getBytes(&c, buf)
		if err != nil {
			return s, err
		}
		s.MessageBytes = append(s.MessageBytes, b)
	}
	return s, nil
}
